package roadmap

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
)

func (u *UseCase) Get(ctx context.Context, id int64) (*model.RoadmapItem, error) {
	return u.repo.GetRoadmapItem(ctx, id)
}

// ListOptions contains options for listing roadmap items
type ListOptions struct {
	Status model.RoadmapStatus
	Offset int
	Limit  int
}

func (u *UseCase) List(ctx context.Context, opts ListOptions) ([]*model.RoadmapItem, error) {
	if opts.Offset < 0 || opts.Limit < 0 {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "offset and limit must not be negative",
			goerr.V("offset", opts.Offset), goerr.V("limit", opts.Limit))
	}
	return u.repo.ListRoadmapItems(ctx, repository.ListRoadmapInput{
		Status: opts.Status,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	})
}

func (u *UseCase) Stats(ctx context.Context) (*model.RoadmapStats, error) {
	return u.repo.RoadmapStats(ctx)
}

type Health struct {
	Status    string              `json:"status"`
	Dimension int                 `json:"dimension"`
	Roadmap   *model.RoadmapStats `json:"roadmap,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Health pings the store and reports the embedding dimension and roadmap
// size. The returned error is the reason for an unhealthy status.
func (u *UseCase) Health(ctx context.Context) (*Health, error) {
	h := &Health{Status: "ok", Dimension: u.repo.Dimension()}

	fail := func(err error) (*Health, error) {
		h.Status = "unavailable"
		h.Error = err.Error()
		return h, err
	}

	if err := u.repo.Ping(ctx); err != nil {
		return fail(err)
	}
	if u.dimension != h.Dimension {
		return fail(goerr.Wrap(model.ErrDimensionMismatch, "embedding and store dimension differ",
			goerr.V("embedding", u.dimension), goerr.V("store", h.Dimension)))
	}
	stats, err := u.repo.RoadmapStats(ctx)
	if err != nil {
		return fail(err)
	}
	h.Roadmap = stats
	return h, nil
}
