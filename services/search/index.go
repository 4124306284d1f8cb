package search

import (
	"encoding/json"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"gorm.io/gorm"

	models "github.com/coachly/coachd/dbmodels"
)

const defaultLimit = 20

// Result is one marketplace hit.
type Result struct {
	AgentID uuid.UUID `json:"agent_id"`
	Score   float64   `json:"score"`
}

// agentDoc is the indexed shape of a published agent.
type agentDoc struct {
	Name     string   `json:"name"`
	Tagline  string   `json:"tagline"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// Index is an in-memory full-text index over published agents. It is
// rebuilt from the database at startup and kept current on publish,
// update and unpublish.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

func NewIndex() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, err
	}
	return &Index{index: idx}, nil
}

// Rebuild indexes every published agent. Called at startup after the
// database connection is up.
func (s *Index) Rebuild(db *gorm.DB) error {
	var agents []models.Agent
	if err := db.Where("published = ?", true).Find(&agents).Error; err != nil {
		return err
	}
	for i := range agents {
		if err := s.Upsert(&agents[i]); err != nil {
			return err
		}
	}
	xlog.Info("Agent search index rebuilt", "agents", len(agents))
	return nil
}

// Upsert indexes or reindexes one agent. Unpublished agents are removed
// instead.
func (s *Index) Upsert(agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !agent.Published {
		return s.index.Delete(agent.ID.String())
	}

	var tags []string
	if len(agent.Tags) > 0 {
		_ = json.Unmarshal(agent.Tags, &tags)
	}
	return s.index.Index(agent.ID.String(), agentDoc{
		Name:     agent.Name,
		Tagline:  agent.Tagline,
		Category: agent.Category,
		Tags:     tags,
	})
}

// Remove drops an agent from the index.
func (s *Index) Remove(agentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Delete(agentID.String())
}

// Search matches the query against name, tagline, category and tags,
// best match first.
func (s *Index) Search(query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := s.index.Search(req)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		results = append(results, Result{AgentID: id, Score: hit.Score})
	}
	return results, nil
}
