package roadmap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// IndexResult counts what happened to each submitted item. Unchanged items
// kept their stored embedding.
type IndexResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func (r *IndexResult) Total() int {
	return r.Created + r.Updated + r.Unchanged + r.Failed
}

// Index stores items with fresh embeddings. Items whose document text is
// unchanged reuse the stored embedding. A failing item is logged and
// counted; only cancellation aborts the run.
func (u *UseCase) Index(ctx context.Context, items []*model.RoadmapItem) (*IndexResult, error) {
	var (
		mu     sync.Mutex
		result IndexResult
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(u.concurrency)
	for _, item := range items {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			outcome, err := u.indexOne(ctx, item)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logging.From(ctx).Warn("failed to index roadmap item",
					slog.Int64("id", item.ID), logging.ErrAttr(err))
				count(&result.Failed)
				return nil
			}

			switch outcome {
			case outcomeCreated:
				count(&result.Created)
			case outcomeUpdated:
				count(&result.Updated)
			default:
				count(&result.Unchanged)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return &result, err
	}

	logging.From(ctx).Info("indexed roadmap",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("failed", result.Failed),
	)
	return &result, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

func (u *UseCase) indexOne(ctx context.Context, item *model.RoadmapItem) (outcome, error) {
	x := item.Copy()
	x.Products = model.NormalizeSet(x.Products)
	x.Platforms = model.NormalizeSet(x.Platforms)
	x.CloudInstances = model.NormalizeSet(x.CloudInstances)
	hash := x.Hash()

	prev, err := u.repo.GetRoadmapItem(ctx, x.ID)
	switch {
	case errors.Is(err, model.ErrRoadmapItemNotFound):
		prev = nil
	case err != nil:
		return 0, err
	}

	if prev != nil && prev.DocumentHash == hash && len(prev.Embedding) == u.dimension {
		if prev.ModifiedAt.Equal(x.ModifiedAt) {
			return outcomeUnchanged, nil
		}
		x.Embedding = prev.Embedding
		x.DocumentHash = hash
		if err := u.repo.UpsertRoadmapItem(ctx, x); err != nil {
			return 0, err
		}
		return outcomeUnchanged, nil
	}

	vec, err := u.embedder.Embed(ctx, x.Document())
	if err != nil {
		return 0, err
	}
	x.Embedding = vec
	x.DocumentHash = hash
	if err := u.repo.UpsertRoadmapItem(ctx, x); err != nil {
		return 0, err
	}

	if prev == nil {
		return outcomeCreated, nil
	}
	return outcomeUpdated, nil
}

// Ingest parses a roadmap export from r and indexes it.
func (u *UseCase) Ingest(ctx context.Context, r io.Reader) (*IndexResult, error) {
	items, skipped, err := Parse(r)
	if err != nil {
		return nil, err
	}
	for _, e := range skipped {
		logging.From(ctx).Warn("skipped roadmap entry", logging.ErrAttr(e))
	}

	result, err := u.Index(ctx, items)
	if result != nil {
		result.Failed += len(skipped)
	}
	return result, err
}

// Fetch downloads the roadmap export from url and ingests it.
func (u *UseCase) Fetch(ctx context.Context, url string) (*IndexResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "invalid roadmap url", goerr.V("url", url))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "evergreen/1.0")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch roadmap", goerr.V("url", url))
	}
	defer safeClose(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected roadmap response",
			goerr.V("url", url), goerr.V("status", resp.StatusCode))
	}
	return u.Ingest(ctx, resp.Body)
}

func safeClose(ctx context.Context, c io.Closer) {
	if err := c.Close(); err != nil {
		logging.From(ctx).Warn("failed to close", logging.ErrAttr(err))
	}
}
