package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
)

// testDim is the dimension of the schema used by external stores.
const testDim = 768

// axis returns a unit vector along dimension i, optionally tilted toward j.
func axis(i int, tilt ...float32) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	for j, t := range tilt {
		v[j] += t
	}
	return v
}

func newItem(id int64, title string, products []string, vec []float32) *model.RoadmapItem {
	item := &model.RoadmapItem{
		ID:          id,
		Title:       title,
		Description: title + " description",
		Status:      model.StatusRollingOut,
		Products:    products,
		Platforms:   []string{"Web"},
		ModifiedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour),
		Embedding:   vec,
	}
	item.DocumentHash = item.Hash()
	return item
}

// uniqueID keeps external store tests from colliding with earlier runs.
func uniqueID() int64 {
	return rand.Int63n(1<<40) + 1_000_000
}

func testRepository(t *testing.T, repo repository.Repository) {
	t.Run("upsert is idempotent and replaces atomically", func(t *testing.T) {
		ctx := context.Background()
		id := uniqueID()
		item := newItem(id, "Teams meeting recording", []string{"Microsoft Teams"}, axis(0))
		gt.NoError(t, repo.UpsertRoadmapItem(ctx, item))
		gt.NoError(t, repo.UpsertRoadmapItem(ctx, item))

		got, err := repo.GetRoadmapItem(ctx, id)
		gt.NoError(t, err)
		gt.Equal(t, got.Title, item.Title)
		gt.Equal(t, got.DocumentHash, item.Hash())
		gt.A(t, got.Embedding).Length(testDim)

		changed := item.Copy()
		changed.Description = "now with transcripts"
		changed.Embedding = axis(1)
		changed.DocumentHash = changed.Hash()
		gt.NoError(t, repo.UpsertRoadmapItem(ctx, changed))

		got, err = repo.GetRoadmapItem(ctx, id)
		gt.NoError(t, err)
		gt.Equal(t, got.Description, "now with transcripts")
		gt.Equal(t, got.Embedding[1], float32(1))
		gt.False(t, got.HasStaleEmbedding())
	})

	t.Run("upsert rejects stale or malformed embeddings", func(t *testing.T) {
		ctx := context.Background()
		id := uniqueID()
		item := newItem(id, "stale", nil, axis(0))
		item.Title = "changed after embedding"
		gt.True(t, errors.Is(repo.UpsertRoadmapItem(ctx, item), model.ErrInvalidArgument))

		short := newItem(id, "short", nil, []float32{1, 2})
		gt.True(t, errors.Is(repo.UpsertRoadmapItem(ctx, short), model.ErrDimensionMismatch))

		_, err := repo.GetRoadmapItem(ctx, id)
		gt.True(t, errors.Is(err, model.ErrRoadmapItemNotFound))
	})

	t.Run("nearest neighbors are ranked with id tie-break", func(t *testing.T) {
		ctx := context.Background()
		product := fmt.Sprintf("Product%d", uniqueID())
		base := uniqueID()
		items := []*model.RoadmapItem{
			newItem(base+3, "tie high id", []string{product}, axis(2)),
			newItem(base+1, "tie low id", []string{product}, axis(2)),
			newItem(base+2, "far", []string{product}, axis(3)),
			newItem(base+4, "close", []string{product}, axis(2, 0.1)),
		}
		for _, item := range items {
			gt.NoError(t, repo.UpsertRoadmapItem(ctx, item))
		}

		got, err := repo.NearestNeighbors(ctx, axis(2), 3, repository.Filter{Products: []string{product}})
		gt.NoError(t, err)
		gt.A(t, got).Length(3)
		gt.Equal(t, got[0].Item.ID, base+1)
		gt.Equal(t, got[1].Item.ID, base+3)
		gt.Equal(t, got[2].Item.ID, base+4)
		for i := 1; i < len(got); i++ {
			gt.True(t, got[i-1].Similarity >= got[i].Similarity)
		}
	})

	t.Run("filters apply before ranking", func(t *testing.T) {
		ctx := context.Background()
		tag := fmt.Sprintf("%d", uniqueID())
		base := uniqueID()
		near := newItem(base+1, "near but other product", []string{"Dynamics 365 " + tag}, axis(4))
		wanted := newItem(base+2, "far but wanted", []string{"SharePoint " + tag}, axis(5))
		wanted.Status = model.StatusLaunched
		wanted.DocumentHash = wanted.Hash()
		gt.NoError(t, repo.UpsertRoadmapItem(ctx, near))
		gt.NoError(t, repo.UpsertRoadmapItem(ctx, wanted))

		got, err := repo.NearestNeighbors(ctx, axis(4), 1, repository.Filter{Products: []string{"sharepoint " + tag}})
		gt.NoError(t, err)
		gt.A(t, got).Length(1)
		gt.Equal(t, got[0].Item.ID, wanted.ID)

		got, err = repo.NearestNeighbors(ctx, axis(4), 5, repository.Filter{
			Products: []string{tag},
			Statuses: []model.RoadmapStatus{model.StatusLaunched},
		})
		gt.NoError(t, err)
		gt.A(t, got).Length(1)
		gt.Equal(t, got[0].Item.ID, wanted.ID)
	})

	t.Run("selective filter still fills k", func(t *testing.T) {
		ctx := context.Background()
		tag := fmt.Sprintf("%d", uniqueID())
		base := uniqueID()

		// Many unfiltered items sit closer to the query than any wanted one.
		for i := range 60 {
			vec := axis(6)
			vec[8+i] = 0.05
			x := newItem(base+int64(i), "closer distractor", []string{"Dynamics 365 " + tag}, vec)
			gt.NoError(t, repo.UpsertRoadmapItem(ctx, x))
		}
		var wanted []int64
		for i := range 3 {
			vec := axis(7)
			vec[6] = 0.3 - float32(i)*0.1
			x := newItem(base+100+int64(i), "wanted", []string{"Planner " + tag}, vec)
			gt.NoError(t, repo.UpsertRoadmapItem(ctx, x))
			wanted = append(wanted, x.ID)
		}

		got, err := repo.NearestNeighbors(ctx, axis(6), 3, repository.Filter{Products: []string{"planner " + tag}})
		gt.NoError(t, err)
		gt.A(t, got).Length(3)
		for i, n := range got {
			gt.Equal(t, n.Item.ID, wanted[i])
		}
	})

	t.Run("k must be positive", func(t *testing.T) {
		_, err := repo.NearestNeighbors(context.Background(), axis(0), 0, repository.Filter{})
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))
	})

	t.Run("customer create is unique by name", func(t *testing.T) {
		ctx := context.Background()
		name := fmt.Sprintf("Contoso-%d", uniqueID())
		created, err := repo.CreateCustomer(ctx, &model.Customer{
			Name:     name,
			Products: []string{"Teams", "SharePoint"},
		})
		gt.NoError(t, err)
		gt.Equal(t, created.Priority, model.PriorityMedium)

		_, err = repo.CreateCustomer(ctx, &model.Customer{Name: name, Notes: "overwrite attempt", Priority: model.PriorityHigh})
		gt.True(t, errors.Is(err, model.ErrDuplicateCustomer))

		got, err := repo.GetCustomer(ctx, name)
		gt.NoError(t, err)
		gt.Equal(t, got.Notes, "")
		gt.Equal(t, got.Priority, model.PriorityMedium)
		gt.A(t, got.Products).Length(2)
	})

	t.Run("customer update advances updated_at", func(t *testing.T) {
		ctx := context.Background()
		name := fmt.Sprintf("Fabrikam-%d", uniqueID())
		created, err := repo.CreateCustomer(ctx, &model.Customer{Name: name})
		gt.NoError(t, err)

		notes := "first"
		u1, err := repo.UpdateCustomer(ctx, name, &model.CustomerUpdate{Notes: &notes})
		gt.NoError(t, err)
		gt.True(t, u1.UpdatedAt.After(created.UpdatedAt))

		notes = "second"
		u2, err := repo.UpdateCustomer(ctx, name, &model.CustomerUpdate{Notes: &notes})
		gt.NoError(t, err)
		gt.True(t, u2.UpdatedAt.After(u1.UpdatedAt))
		gt.Equal(t, u2.Notes, "second")

		bad := model.Priority("urgent")
		_, err = repo.UpdateCustomer(ctx, name, &model.CustomerUpdate{Priority: &bad})
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))

		missing := "x"
		_, err = repo.UpdateCustomer(ctx, name+"-missing", &model.CustomerUpdate{Notes: &missing})
		gt.True(t, errors.Is(err, model.ErrCustomerNotFound))
	})

	t.Run("customer rename respects uniqueness", func(t *testing.T) {
		ctx := context.Background()
		a := fmt.Sprintf("Alpha-%d", uniqueID())
		b := fmt.Sprintf("Beta-%d", uniqueID())
		_, err := repo.CreateCustomer(ctx, &model.Customer{Name: a})
		gt.NoError(t, err)
		_, err = repo.CreateCustomer(ctx, &model.Customer{Name: b})
		gt.NoError(t, err)

		_, err = repo.UpdateCustomer(ctx, a, &model.CustomerUpdate{Name: &b})
		gt.True(t, errors.Is(err, model.ErrDuplicateCustomer))

		renamed := a + "-renamed"
		got, err := repo.UpdateCustomer(ctx, a, &model.CustomerUpdate{Name: &renamed})
		gt.NoError(t, err)
		gt.Equal(t, got.Name, renamed)

		_, err = repo.GetCustomer(ctx, a)
		gt.True(t, errors.Is(err, model.ErrCustomerNotFound))
	})

	t.Run("customer delete and list", func(t *testing.T) {
		ctx := context.Background()
		name := fmt.Sprintf("Delete-%d", uniqueID())
		_, err := repo.CreateCustomer(ctx, &model.Customer{Name: name})
		gt.NoError(t, err)

		list, err := repo.ListCustomers(ctx)
		gt.NoError(t, err)
		found := false
		for i, c := range list {
			if c.Name == name {
				found = true
			}
			if i > 0 {
				gt.True(t, list[i-1].Name < c.Name)
			}
		}
		gt.True(t, found)

		gt.NoError(t, repo.DeleteCustomer(ctx, name))
		gt.True(t, errors.Is(repo.DeleteCustomer(ctx, name), model.ErrCustomerNotFound))
	})
}

func TestMemory(t *testing.T) {
	testRepository(t, repository.NewMemory(testDim))
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set")
	}

	repo, err := repository.NewPostgres(context.Background(), repository.PostgresConfig{DSN: dsn, Migrate: true})
	gt.NoError(t, err)
	defer repo.Close()

	gt.Equal(t, repo.Dimension(), testDim)
	testRepository(t, repo)
}

func TestFirestore(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID, testDim)
	gt.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}
