package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/textsplitter"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	models "github.com/coachly/coachd/dbmodels"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
)

// Chunk is one retrieval result: a document segment with its similarity to
// the query.
type Chunk struct {
	DocumentTitle string  `json:"documentTitle"`
	Heading       string  `json:"heading,omitempty"`
	Content       string  `json:"content"`
	Similarity    float32 `json:"similarity"`
}

// Store holds per-agent vector collections in memory, with chunk rows and
// their embeddings persisted so collections rebuild at startup.
type Store struct {
	db        *gorm.DB
	vdb       *chromem.DB
	embedding chromem.EmbeddingFunc
	splitter  textsplitter.RecursiveCharacter

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

func NewStore(db *gorm.DB, embedding chromem.EmbeddingFunc) *Store {
	return &Store{
		db:        db,
		vdb:       chromem.NewDB(),
		embedding: embedding,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		collections: map[string]*chromem.Collection{},
	}
}

// OpenAIEmbedder builds a chromem embedding function backed by the OpenAI
// embeddings endpoint.
func OpenAIEmbedder(client *openai.Client, model string) chromem.EmbeddingFunc {
	return chromem.EmbeddingFunc(
		func(ctx context.Context, text string) ([]float32, error) {
			resp, err := client.CreateEmbeddings(ctx,
				openai.EmbeddingRequestStrings{
					Input: []string{text},
					Model: openai.EmbeddingModel(model),
				},
			)
			if err != nil {
				return []float32{}, fmt.Errorf("error getting embeddings: %v", err)
			}

			if len(resp.Data) == 0 {
				return []float32{}, fmt.Errorf("no response from embeddings API")
			}

			return resp.Data[0].Embedding, nil
		},
	)
}

func (s *Store) collection(agentID uuid.UUID) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := "agent-" + agentID.String()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.vdb.GetOrCreateCollection(name, nil, s.embedding)
	if err != nil {
		return nil, err
	}
	s.collections[name] = c
	return c, nil
}

// Ingest splits text, embeds each segment, persists the chunk rows and adds
// them to the agent's collection. Returns the number of chunks created.
func (s *Store) Ingest(ctx context.Context, agentID uuid.UUID, title, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("empty document")
	}

	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return 0, err
	}

	doc := models.KnowledgeDocument{AgentID: agentID, Title: title}
	if err := s.db.Create(&doc).Error; err != nil {
		return 0, err
	}

	collection, err := s.collection(agentID)
	if err != nil {
		return 0, err
	}

	docs := make([]chromem.Document, 0, len(parts))
	for _, part := range parts {
		embedding, err := s.embedding(ctx, part)
		if err != nil {
			return 0, err
		}

		raw, err := json.Marshal(embedding)
		if err != nil {
			return 0, err
		}
		chunk := models.KnowledgeChunk{
			DocumentID: doc.ID,
			AgentID:    agentID,
			Heading:    headingOf(part),
			Content:    part,
			Embedding:  datatypes.JSON(raw),
		}
		if err := s.db.Create(&chunk).Error; err != nil {
			return 0, err
		}

		docs = append(docs, chromem.Document{
			ID:        chunk.ID.String(),
			Content:   part,
			Embedding: embedding,
			Metadata: map[string]string{
				"title":   title,
				"heading": chunk.Heading,
			},
		})
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, err
	}

	xlog.Info("Knowledge ingested", "agent", agentID, "title", title, "chunks", len(docs))
	return len(docs), nil
}

// Rebuild reloads every persisted chunk into the in-memory collections,
// reusing the stored embeddings.
func (s *Store) Rebuild(ctx context.Context) error {
	var chunks []models.KnowledgeChunk
	if err := s.db.Find(&chunks).Error; err != nil {
		return err
	}

	byAgent := map[uuid.UUID][]chromem.Document{}
	titles := map[uuid.UUID]string{}
	for _, c := range chunks {
		var embedding []float32
		if err := json.Unmarshal(c.Embedding, &embedding); err != nil {
			xlog.Warn("Skipping chunk with unreadable embedding", "chunk", c.ID, "error", err)
			continue
		}
		var doc models.KnowledgeDocument
		title := titles[c.DocumentID]
		if title == "" {
			if err := s.db.First(&doc, "id = ?", c.DocumentID).Error; err == nil {
				title = doc.Title
				titles[c.DocumentID] = title
			}
		}
		byAgent[c.AgentID] = append(byAgent[c.AgentID], chromem.Document{
			ID:        c.ID.String(),
			Content:   c.Content,
			Embedding: embedding,
			Metadata: map[string]string{
				"title":   title,
				"heading": c.Heading,
			},
		})
	}

	for agentID, docs := range byAgent {
		collection, err := s.collection(agentID)
		if err != nil {
			return err
		}
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return err
		}
	}

	xlog.Info("Knowledge collections rebuilt", "agents", len(byAgent), "chunks", len(chunks))
	return nil
}

// DeleteAgent drops the agent's collection and chunk rows.
func (s *Store) DeleteAgent(agentID uuid.UUID) error {
	s.mu.Lock()
	name := "agent-" + agentID.String()
	delete(s.collections, name)
	_ = s.vdb.DeleteCollection(name)
	s.mu.Unlock()

	if err := s.db.Where("agent_id = ?", agentID).Delete(&models.KnowledgeChunk{}).Error; err != nil {
		return err
	}
	return s.db.Where("agent_id = ?", agentID).Delete(&models.KnowledgeDocument{}).Error
}

// headingOf pulls the first markdown heading out of a segment, if any.
func headingOf(part string) string {
	for _, line := range strings.Split(part, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}
