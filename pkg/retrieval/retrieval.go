package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/metrics"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
)

const (
	DefaultLimit = 5
	MaxLimit     = 50
)

// Embedder is satisfied by *embedding.Gateway.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Query struct {
	Text string
	// Limit of 0 selects DefaultLimit. Values above MaxLimit are capped.
	Limit  int
	Filter repository.Filter
}

// Engine answers free-text questions with ranked roadmap items. It never
// writes to the store.
type Engine struct {
	embedder Embedder
	store    repository.RoadmapRepository
}

func New(embedder Embedder, store repository.RoadmapRepository) *Engine {
	return &Engine{
		embedder: embedder,
		store:    store,
	}
}

// Search returns at most Limit results ordered by non-increasing score with
// ranks starting at 1. No match is an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, q Query) ([]*model.RetrievalResult, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "query text is empty")
	}

	limit := q.Limit
	switch {
	case limit < 0:
		return nil, goerr.Wrap(model.ErrInvalidArgument, "limit must not be negative", goerr.V("limit", limit))
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	neighbors, err := e.store.NearestNeighbors(ctx, vec, limit, q.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]*model.RetrievalResult, 0, len(neighbors))
	for i, n := range neighbors {
		results = append(results, &model.RetrievalResult{
			Item:  n.Item,
			Score: Clamp(n.Similarity),
			Rank:  i + 1,
		})
	}

	metrics.RetrievalResults.Observe(float64(len(results)))
	logging.From(ctx).Debug("roadmap search",
		slog.String("query", text),
		slog.Int("limit", limit),
		slog.Int("results", len(results)),
	)
	return results, nil
}

// Similarity embeds text and returns its clamped cosine similarity to the
// stored embedding of item.
func (e *Engine) Similarity(ctx context.Context, text string, item *model.RoadmapItem) (float64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, goerr.Wrap(model.ErrInvalidArgument, "text is empty")
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	if len(vec) != len(item.Embedding) {
		return 0, goerr.Wrap(model.ErrDimensionMismatch, "item embedding has wrong dimension",
			goerr.V("id", item.ID), goerr.V("expected", len(vec)), goerr.V("actual", len(item.Embedding)))
	}
	return Clamp(repository.Cosine(vec, item.Embedding)), nil
}

// Clamp maps a raw cosine similarity into [0, 1].
func Clamp(similarity float64) float64 {
	return max(0, min(1, similarity))
}
