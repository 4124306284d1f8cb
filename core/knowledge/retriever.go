package knowledge

import (
	"context"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	models "github.com/coachly/coachd/dbmodels"
)

const (
	DefaultLimit         = 5
	DefaultMinSimilarity = 0.7
)

// RetrieveOptions tune a retrieval call. Zero values fall back to defaults.
type RetrieveOptions struct {
	Limit         int
	MinSimilarity float32
}

// HasSources reports whether the agent has any indexed knowledge. Callers
// skip retrieval entirely when it returns false.
func (s *Store) HasSources(agentID uuid.UUID) bool {
	var count int64
	if err := s.db.Model(&models.KnowledgeChunk{}).
		Where("agent_id = ?", agentID).
		Count(&count).Error; err != nil {
		xlog.Warn("Failed to count knowledge chunks", "agent", agentID, "error", err)
		return false
	}
	return count > 0
}

// Retrieve returns the chunks most similar to query, most-similar first.
// Every returned chunk has similarity >= MinSimilarity and the result is
// capped at Limit. An agent without sources yields a nil slice.
func (s *Store) Retrieve(ctx context.Context, agentID uuid.UUID, query string, opts RetrieveOptions) ([]Chunk, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = DefaultMinSimilarity
	}

	if !s.HasSources(agentID) {
		return nil, nil
	}

	collection, err := s.collection(agentID)
	if err != nil {
		return nil, err
	}

	n := opts.Limit
	if count := collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, r := range results {
		if r.Similarity < opts.MinSimilarity {
			continue
		}
		chunks = append(chunks, Chunk{
			DocumentTitle: r.Metadata["title"],
			Heading:       r.Metadata["heading"],
			Content:       r.Content,
			Similarity:    r.Similarity,
		})
	}
	return chunks, nil
}
