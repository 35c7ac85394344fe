package repository

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

// Memory is an in-process Repository. Nearest neighbour search is a linear
// scan, which is fine for tests and small roadmaps.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	items     map[int64]*model.RoadmapItem
	customers map[string]*model.Customer
	now       func() time.Time
}

type MemoryOption func(*Memory)

// WithClock overrides the time source for created_at and updated_at.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(dimension int, opts ...MemoryOption) *Memory {
	m := &Memory{
		dimension: dimension,
		items:     make(map[int64]*model.RoadmapItem),
		customers: make(map[string]*model.Customer),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Dimension() int {
	return m.dimension
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) UpsertRoadmapItem(ctx context.Context, item *model.RoadmapItem) error {
	if err := validateItem(item, m.dimension); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := item.Copy()
	now := m.now().UTC()
	stored.CreatedAt = now
	if prev, ok := m.items[item.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	stored.UpdatedAt = now
	m.items[item.ID] = stored
	return nil
}

func (m *Memory) GetRoadmapItem(ctx context.Context, id int64) (*model.RoadmapItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrRoadmapItemNotFound, "no such roadmap item", goerr.V("id", id))
	}
	return item.Copy(), nil
}

func (m *Memory) ListRoadmapItems(ctx context.Context, input ListRoadmapInput) ([]*model.RoadmapItem, error) {
	m.mu.RLock()
	var items []*model.RoadmapItem
	for _, item := range m.items {
		if input.Status != "" && item.Status != input.Status {
			continue
		}
		if !inWindow(item, input.Window) {
			continue
		}
		items = append(items, item.Copy())
	}
	m.mu.RUnlock()

	slices.SortFunc(items, func(a, b *model.RoadmapItem) int {
		if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return paginate(items, input.Offset, input.Limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (m *Memory) NearestNeighbors(ctx context.Context, vector []float32, k int, filter Filter) ([]*Neighbor, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}
	if len(vector) != m.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector has wrong dimension",
			goerr.V("expected", m.dimension), goerr.V("actual", len(vector)))
	}

	m.mu.RLock()
	neighbors := make([]*Neighbor, 0, len(m.items))
	for _, item := range m.items {
		if !filter.Match(item) {
			continue
		}
		neighbors = append(neighbors, &Neighbor{
			Item:       item.Copy(),
			Similarity: Cosine(vector, item.Embedding),
		})
	}
	m.mu.RUnlock()

	SortNeighbors(neighbors)
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func (m *Memory) RoadmapStats(ctx context.Context) (*model.RoadmapStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &model.RoadmapStats{ByStatus: make(map[model.RoadmapStatus]int)}
	for _, item := range m.items {
		stats.Total++
		stats.ByStatus[item.Status]++
	}
	return stats, nil
}

func (m *Memory) CreateCustomer(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	c, err := normalizeCustomer(customer)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[c.Name]; ok {
		return nil, goerr.Wrap(model.ErrDuplicateCustomer, "customer already exists", goerr.V("name", c.Name))
	}

	now := m.now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.customers[c.Name] = c
	return c.Copy(), nil
}

func (m *Memory) GetCustomer(ctx context.Context, name string) (*model.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[strings.TrimSpace(name)]
	if !ok {
		return nil, goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
	}
	return c.Copy(), nil
}

func (m *Memory) UpdateCustomer(ctx context.Context, name string, update *model.CustomerUpdate) (*model.Customer, error) {
	if update == nil || update.IsEmpty() {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "update has no fields", goerr.V("name", name))
	}
	name = strings.TrimSpace(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.customers[name]
	if !ok {
		return nil, goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
	}

	next, err := normalizeCustomer(update.Apply(prev))
	if err != nil {
		return nil, err
	}
	if next.Name != name {
		if _, taken := m.customers[next.Name]; taken {
			return nil, goerr.Wrap(model.ErrDuplicateCustomer, "customer already exists", goerr.V("name", next.Name))
		}
		delete(m.customers, name)
	}

	next.UpdatedAt = model.NextUpdatedAt(prev.UpdatedAt, m.now().UTC())
	m.customers[next.Name] = next
	return next.Copy(), nil
}

func (m *Memory) DeleteCustomer(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	if _, ok := m.customers[name]; !ok {
		return goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
	}
	delete(m.customers, name)
	return nil
}

func (m *Memory) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, c.Copy())
	}
	slices.SortFunc(out, func(a, b *model.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}
