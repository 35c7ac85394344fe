package repository

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionRoadmap   = "roadmap_items"
	collectionCustomers = "customers"
	distanceField       = "vector_distance"
	// findNearestMax is the largest limit Firestore accepts for FindNearest.
	findNearestMax = 1000
)

// Firestore is a Repository on Cloud Firestore. Vector search needs a
// vector index on roadmap_items.embedding (cosine, flat) and a composite
// index with status when searching by status.
type Firestore struct {
	client    *firestore.Client
	dimension int
	now       func() time.Time
}

func NewFirestore(ctx context.Context, projectID, databaseID string, dimension int) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("firestore project is required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	return &Firestore{client: client, dimension: dimension, now: time.Now}, nil
}

type roadmapDoc struct {
	ID             int64              `firestore:"id"`
	Title          string             `firestore:"title"`
	Description    string             `firestore:"description"`
	Status         string             `firestore:"status"`
	ReleaseDate    *time.Time         `firestore:"release_date"`
	Products       []string           `firestore:"products"`
	Platforms      []string           `firestore:"platforms"`
	CloudInstances []string           `firestore:"cloud_instances"`
	ReleasePhase   string             `firestore:"release_phase"`
	ModifiedAt     time.Time          `firestore:"modified_at"`
	Document       string             `firestore:"document"`
	DocumentHash   string             `firestore:"document_hash"`
	Embedding      firestore.Vector32 `firestore:"embedding"`
	CreatedAt      time.Time          `firestore:"created_at"`
	UpdatedAt      time.Time          `firestore:"updated_at"`
}

func toRoadmapDoc(item *model.RoadmapItem) *roadmapDoc {
	return &roadmapDoc{
		ID:             item.ID,
		Title:          item.Title,
		Description:    item.Description,
		Status:         string(item.Status),
		ReleaseDate:    item.ReleaseDate,
		Products:       nonNil(item.Products),
		Platforms:      nonNil(item.Platforms),
		CloudInstances: nonNil(item.CloudInstances),
		ReleasePhase:   item.ReleasePhase,
		ModifiedAt:     item.ModifiedAt,
		Document:       item.Document(),
		DocumentHash:   item.DocumentHash,
		Embedding:      firestore.Vector32(item.Embedding),
	}
}

func (d *roadmapDoc) toModel() *model.RoadmapItem {
	return &model.RoadmapItem{
		ID:             d.ID,
		Title:          d.Title,
		Description:    d.Description,
		Status:         model.RoadmapStatus(d.Status),
		ReleaseDate:    d.ReleaseDate,
		Products:       d.Products,
		Platforms:      d.Platforms,
		CloudInstances: d.CloudInstances,
		ReleasePhase:   d.ReleasePhase,
		ModifiedAt:     d.ModifiedAt,
		DocumentHash:   d.DocumentHash,
		Embedding:      []float32(d.Embedding),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type customerDoc struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	Products    []string  `firestore:"products"`
	Priority    string    `firestore:"priority"`
	Notes       string    `firestore:"notes"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func toCustomerDoc(c *model.Customer) *customerDoc {
	return &customerDoc{
		Name:        c.Name,
		Description: c.Description,
		Products:    nonNil(c.Products),
		Priority:    string(c.Priority),
		Notes:       c.Notes,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (d *customerDoc) toModel() *model.Customer {
	return &model.Customer{
		Name:        d.Name,
		Description: d.Description,
		Products:    d.Products,
		Priority:    model.Priority(d.Priority),
		Notes:       d.Notes,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// customerDocID escapes names so that "/" cannot create sub paths.
func customerDocID(name string) string {
	return url.PathEscape(name)
}

func itemDocID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// firestoreError maps transport failures to model.ErrStoreUnavailable.
func firestoreError(err error, msg string, opts ...goerr.Option) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		opts = append(opts, goerr.V("cause", err.Error()))
		return goerr.Wrap(model.ErrStoreUnavailable, msg, opts...)
	}
	return goerr.Wrap(err, msg, opts...)
}

func (f *Firestore) Dimension() int {
	return f.dimension
}

func (f *Firestore) Ping(ctx context.Context) error {
	_, err := f.client.Collection(collectionCustomers).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to reach firestore", goerr.V("cause", err.Error()))
	}
	return nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) UpsertRoadmapItem(ctx context.Context, item *model.RoadmapItem) error {
	if err := validateItem(item, f.dimension); err != nil {
		return err
	}

	ref := f.client.Collection(collectionRoadmap).Doc(itemDocID(item.ID))
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := toRoadmapDoc(item)
		now := f.now().UTC()
		doc.CreatedAt, doc.UpdatedAt = now, now

		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var prev roadmapDoc
			if err := snap.DataTo(&prev); err != nil {
				return goerr.Wrap(err, "failed to decode roadmap item")
			}
			doc.CreatedAt = prev.CreatedAt
		case status.Code(err) != codes.NotFound:
			return err
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return firestoreError(err, "failed to upsert roadmap item", goerr.V("id", item.ID))
	}
	return nil
}

func (f *Firestore) GetRoadmapItem(ctx context.Context, id int64) (*model.RoadmapItem, error) {
	snap, err := f.client.Collection(collectionRoadmap).Doc(itemDocID(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(model.ErrRoadmapItemNotFound, "no such roadmap item", goerr.V("id", id))
	}
	if err != nil {
		return nil, firestoreError(err, "failed to get roadmap item", goerr.V("id", id))
	}

	var doc roadmapDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode roadmap item", goerr.V("id", id))
	}
	return doc.toModel(), nil
}

// ListRoadmapItems evaluates the window in process because Firestore cannot
// OR range conditions across two fields.
func (f *Firestore) ListRoadmapItems(ctx context.Context, input ListRoadmapInput) ([]*model.RoadmapItem, error) {
	q := f.client.Collection(collectionRoadmap).Query
	if input.Status != "" {
		q = q.Where("status", "==", string(input.Status))
	}
	q = q.OrderBy("modified_at", firestore.Desc).OrderBy("id", firestore.Asc)

	items, err := f.collectItems(ctx, q.Documents(ctx), func(item *model.RoadmapItem) bool {
		return inWindow(item, input.Window)
	})
	if err != nil {
		return nil, err
	}
	return paginate(items, input.Offset, input.Limit), nil
}

func (f *Firestore) collectItems(ctx context.Context, it *firestore.DocumentIterator, keep func(*model.RoadmapItem) bool) ([]*model.RoadmapItem, error) {
	defer it.Stop()

	var items []*model.RoadmapItem
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, firestoreError(err, "failed to iterate roadmap items")
		}

		var doc roadmapDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode roadmap item", goerr.V("doc", snap.Ref.ID))
		}
		if item := doc.toModel(); keep(item) {
			items = append(items, item)
		}
	}
	return items, nil
}

// NearestNeighbors uses FindNearest when only statuses are filtered. Product
// and platform filters use substring matching, which Firestore cannot index,
// so those queries rank the status-filtered set in process instead of
// post-filtering a truncated vector result.
func (f *Firestore) NearestNeighbors(ctx context.Context, vector []float32, k int, filter Filter) ([]*Neighbor, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}
	if len(vector) != f.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector has wrong dimension",
			goerr.V("expected", f.dimension), goerr.V("actual", len(vector)))
	}

	q := f.client.Collection(collectionRoadmap).Query
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status", "in", statuses)
	}

	if len(filter.Products) > 0 || len(filter.Platforms) > 0 {
		items, err := f.collectItems(ctx, q.Documents(ctx), filter.Match)
		if err != nil {
			return nil, err
		}
		neighbors := make([]*Neighbor, 0, len(items))
		for _, item := range items {
			neighbors = append(neighbors, &Neighbor{Item: item, Similarity: Cosine(vector, item.Embedding)})
		}
		SortNeighbors(neighbors)
		if len(neighbors) > k {
			neighbors = neighbors[:k]
		}
		return neighbors, nil
	}

	// Fetch one extra result so that a tie at the k-th position can still be
	// resolved by ID.
	limit := min(k+1, findNearestMax)
	vq := q.FindNearest("embedding", firestore.Vector32(vector), limit, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField})

	it := vq.Documents(ctx)
	defer it.Stop()

	var neighbors []*Neighbor
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, firestoreError(err, "failed to search roadmap items")
		}

		var doc roadmapDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode roadmap item", goerr.V("doc", snap.Ref.ID))
		}
		sim := Cosine(vector, doc.Embedding)
		if d, ok := snap.Data()[distanceField].(float64); ok {
			sim = 1 - d
		}
		neighbors = append(neighbors, &Neighbor{Item: doc.toModel(), Similarity: sim})
	}

	SortNeighbors(neighbors)
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func (f *Firestore) RoadmapStats(ctx context.Context) (*model.RoadmapStats, error) {
	it := f.client.Collection(collectionRoadmap).Select("status").Documents(ctx)
	defer it.Stop()

	stats := &model.RoadmapStats{ByStatus: make(map[model.RoadmapStatus]int)}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, firestoreError(err, "failed to count roadmap items")
		}
		s, _ := snap.Data()["status"].(string)
		stats.ByStatus[model.RoadmapStatus(s)]++
		stats.Total++
	}
	return stats, nil
}

func (f *Firestore) CreateCustomer(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	c, err := normalizeCustomer(customer)
	if err != nil {
		return nil, err
	}

	now := f.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err = f.client.Collection(collectionCustomers).Doc(customerDocID(c.Name)).Create(ctx, toCustomerDoc(c))
	if status.Code(err) == codes.AlreadyExists {
		return nil, goerr.Wrap(model.ErrDuplicateCustomer, "customer already exists", goerr.V("name", c.Name))
	}
	if err != nil {
		return nil, firestoreError(err, "failed to create customer", goerr.V("name", c.Name))
	}
	return c, nil
}

func (f *Firestore) GetCustomer(ctx context.Context, name string) (*model.Customer, error) {
	name = strings.TrimSpace(name)
	snap, err := f.client.Collection(collectionCustomers).Doc(customerDocID(name)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
	}
	if err != nil {
		return nil, firestoreError(err, "failed to get customer", goerr.V("name", name))
	}

	var doc customerDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode customer", goerr.V("name", name))
	}
	return doc.toModel(), nil
}

func (f *Firestore) UpdateCustomer(ctx context.Context, name string, update *model.CustomerUpdate) (*model.Customer, error) {
	if update == nil || update.IsEmpty() {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "update has no fields", goerr.V("name", name))
	}
	name = strings.TrimSpace(name)
	col := f.client.Collection(collectionCustomers)

	var updated *model.Customer
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := col.Doc(customerDocID(name))
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
		}
		if err != nil {
			return err
		}

		var prev customerDoc
		if err := snap.DataTo(&prev); err != nil {
			return goerr.Wrap(err, "failed to decode customer", goerr.V("name", name))
		}

		next, err := normalizeCustomer(update.Apply(prev.toModel()))
		if err != nil {
			return err
		}
		next.UpdatedAt = model.NextUpdatedAt(prev.UpdatedAt, f.now().UTC())

		if next.Name == name {
			updated = next
			return tx.Set(ref, toCustomerDoc(next))
		}

		newRef := col.Doc(customerDocID(next.Name))
		if _, err := tx.Get(newRef); err == nil {
			return goerr.Wrap(model.ErrDuplicateCustomer, "customer already exists", goerr.V("name", next.Name))
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		updated = next
		return tx.Create(newRef, toCustomerDoc(next))
	})
	if errors.Is(err, model.ErrCustomerNotFound) || errors.Is(err, model.ErrDuplicateCustomer) || errors.Is(err, model.ErrInvalidArgument) {
		return nil, err
	}
	if err != nil {
		return nil, firestoreError(err, "failed to update customer", goerr.V("name", name))
	}
	return updated, nil
}

func (f *Firestore) DeleteCustomer(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	_, err := f.client.Collection(collectionCustomers).Doc(customerDocID(name)).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return goerr.Wrap(model.ErrCustomerNotFound, "no such customer", goerr.V("name", name))
	}
	if err != nil {
		return firestoreError(err, "failed to delete customer", goerr.V("name", name))
	}
	return nil
}

func (f *Firestore) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	it := f.client.Collection(collectionCustomers).OrderBy("name", firestore.Asc).Documents(ctx)
	defer it.Stop()

	var out []*model.Customer
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, firestoreError(err, "failed to list customers")
		}
		var doc customerDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode customer", goerr.V("doc", snap.Ref.ID))
		}
		out = append(out, doc.toModel())
	}
	slices.SortFunc(out, func(a, b *model.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}
