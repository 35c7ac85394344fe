package repository

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector. Vectors of different length are a programming error.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortNeighbors orders by similarity descending, then ID ascending.
func SortNeighbors(neighbors []*Neighbor) {
	slices.SortStableFunc(neighbors, func(a, b *Neighbor) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
}

// Match reports whether item passes f.
func (f Filter) Match(item *model.RoadmapItem) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, item.Status) {
		return false
	}
	if len(f.Products) > 0 && !anyContains(item.Products, f.Products) {
		return false
	}
	if len(f.Platforms) > 0 && !anyContains(item.Platforms, f.Platforms) {
		return false
	}
	return true
}

func (f Filter) IsEmpty() bool {
	return len(f.Products) == 0 && len(f.Platforms) == 0 && len(f.Statuses) == 0
}

func anyContains(values, terms []string) bool {
	for _, v := range values {
		lv := strings.ToLower(v)
		for _, t := range terms {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" && strings.Contains(lv, t) {
				return true
			}
		}
	}
	return false
}

func validateK(k int) error {
	if k < 1 {
		return goerr.Wrap(model.ErrInvalidArgument, "k must be at least 1", goerr.V("k", k))
	}
	return nil
}

func validateItem(item *model.RoadmapItem, dimension int) error {
	if item == nil || item.ID <= 0 {
		return goerr.Wrap(model.ErrInvalidArgument, "roadmap item requires a positive id")
	}
	if len(item.Embedding) != dimension {
		return goerr.Wrap(model.ErrDimensionMismatch, "embedding has wrong dimension",
			goerr.V("id", item.ID), goerr.V("expected", dimension), goerr.V("actual", len(item.Embedding)))
	}
	if item.DocumentHash != item.Hash() {
		return goerr.Wrap(model.ErrInvalidArgument, "embedding was not generated for the current document",
			goerr.V("id", item.ID))
	}
	return nil
}

func inWindow(item *model.RoadmapItem, w *model.ReportWindow) bool {
	if w == nil {
		return true
	}
	if w.Contains(item.ModifiedAt) {
		return true
	}
	return item.ReleaseDate != nil && w.Contains(*item.ReleaseDate)
}

// normalizeCustomer validates c and returns a copy with trimmed name,
// canonical products and a canonical priority.
func normalizeCustomer(c *model.Customer) (*model.Customer, error) {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "customer name is required")
	}
	priority, err := model.ParsePriority(string(c.Priority))
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "invalid customer priority", goerr.V("priority", c.Priority))
	}

	x := c.Copy()
	x.Name = strings.TrimSpace(x.Name)
	x.Products = model.NormalizeSet(x.Products)
	x.Priority = priority
	return x, nil
}
