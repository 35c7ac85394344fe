package repository

import (
	"context"

	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

// RoadmapRepository stores roadmap items with their embeddings and answers
// nearest neighbour queries over them.
type RoadmapRepository interface {
	// UpsertRoadmapItem inserts or replaces the item keyed by its ID. The
	// document fields and the embedding are replaced together or not at all.
	UpsertRoadmapItem(ctx context.Context, item *model.RoadmapItem) error

	GetRoadmapItem(ctx context.Context, id int64) (*model.RoadmapItem, error)

	// ListRoadmapItems returns items ordered by modification time, newest
	// first, then by ID.
	ListRoadmapItems(ctx context.Context, input ListRoadmapInput) ([]*model.RoadmapItem, error)

	// NearestNeighbors returns at most k items ranked by cosine similarity to
	// vector, ties broken by ascending ID. filter is applied before ranking.
	NearestNeighbors(ctx context.Context, vector []float32, k int, filter Filter) ([]*Neighbor, error)

	RoadmapStats(ctx context.Context) (*model.RoadmapStats, error)
}

// CustomerRepository stores customers keyed by unique name.
type CustomerRepository interface {
	CreateCustomer(ctx context.Context, customer *model.Customer) (*model.Customer, error)
	GetCustomer(ctx context.Context, name string) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, name string, update *model.CustomerUpdate) (*model.Customer, error)
	DeleteCustomer(ctx context.Context, name string) error
	// ListCustomers returns all customers ordered by name.
	ListCustomers(ctx context.Context) ([]*model.Customer, error)
}

type Repository interface {
	RoadmapRepository
	CustomerRepository

	// Dimension is the embedding size the store was created for.
	Dimension() int
	Ping(ctx context.Context) error
	Close() error
}

// Filter restricts candidates before ranking. Empty fields match everything.
// Products and Platforms match case-insensitively by substring, so "Teams"
// selects items of "Microsoft Teams".
type Filter struct {
	Products  []string
	Platforms []string
	Statuses  []model.RoadmapStatus
}

// IsZero reports whether the filter selects every item.
func (f Filter) IsZero() bool {
	return len(f.Products) == 0 && len(f.Platforms) == 0 && len(f.Statuses) == 0
}

type Neighbor struct {
	Item *model.RoadmapItem
	// Similarity is the raw cosine similarity in [-1, 1].
	Similarity float64
}

type ListRoadmapInput struct {
	Status model.RoadmapStatus
	// Window selects items modified or released inside it.
	Window *model.ReportWindow
	Offset int
	// Limit of 0 means no limit.
	Limit int
}
