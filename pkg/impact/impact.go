package impact

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
)

// Searcher is satisfied by *retrieval.Engine.
type Searcher interface {
	Search(ctx context.Context, q retrieval.Query) ([]*model.RetrievalResult, error)
	Similarity(ctx context.Context, text string, item *model.RoadmapItem) (float64, error)
}

// Candidate is a roadmap item to assess. Similarity, when set, is the
// retrieval score of the item and is used as the semantic signal.
type Candidate struct {
	Item       *model.RoadmapItem
	Similarity *float64
}

type Scorer struct {
	cfg      Config
	searcher Searcher
}

func New(cfg Config, searcher Searcher) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, searcher: searcher}, nil
}

func (s *Scorer) Config() Config {
	return s.cfg
}

// Assess scores every candidate for customer and returns the assessments
// ordered by score, then newest release date, then ID.
func (s *Scorer) Assess(ctx context.Context, customer *model.Customer, candidates []Candidate) ([]*model.ImpactAssessment, error) {
	wp, ws := s.cfg.weights()
	profile := customer.Profile()
	products := model.NormalizeSet(customer.Products)

	out := make([]*model.ImpactAssessment, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var semantic float64
		if c.Similarity != nil {
			semantic = *c.Similarity
		} else {
			sim, err := s.searcher.Similarity(ctx, profile, c.Item)
			if err != nil {
				return nil, err
			}
			semantic = sim
		}
		semantic = retrieval.Clamp(semantic)

		matched := matchProducts(products, c.Item.Products)
		overlap := 0.0
		if len(products) > 0 {
			overlap = float64(len(matched)) / float64(len(products))
		}
		platforms := matchPlatforms(customer, c.Item.Platforms)

		score := retrieval.Clamp(wp*overlap + ws*semantic)
		if len(products) > 0 && len(matched) == 0 {
			score = min(score, s.cfg.ZeroOverlapCap)
		}
		notable := score >= s.cfg.NotableThreshold ||
			(customer.Priority == model.PriorityHigh && score >= s.cfg.HighPriorityNotableThreshold)

		out = append(out, &model.ImpactAssessment{
			Customer:         customer,
			Item:             c.Item,
			Score:            score,
			Rationale:        rationale(matched, platforms, semantic, score),
			MatchedProducts:  matched,
			MatchedPlatforms: platforms,
			Notable:          notable,
		})
	}

	Sort(out)
	return out, nil
}

// AssessQuery finds candidates for an ad-hoc question: one retrieval per
// customer product plus one for the question itself. Items found more than
// once keep their best similarity. At most limit assessments are returned.
func (s *Scorer) AssessQuery(ctx context.Context, customer *model.Customer, question string, limit int) ([]*model.ImpactAssessment, error) {
	if limit <= 0 {
		limit = retrieval.DefaultLimit
	}
	question = strings.TrimSpace(question)
	if question == "" {
		question = customer.Profile()
	}

	queries := []retrieval.Query{{Text: question, Limit: limit}}
	for _, p := range model.NormalizeSet(customer.Products) {
		queries = append(queries, retrieval.Query{
			Text:   question,
			Limit:  limit,
			Filter: repository.Filter{Products: []string{p}},
		})
	}

	best := make(map[int64]*model.RetrievalResult)
	for _, q := range queries {
		results, err := s.searcher.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if prev, ok := best[r.Item.ID]; !ok || r.Score > prev.Score {
				best[r.Item.ID] = r
			}
		}
	}

	candidates := make([]Candidate, 0, len(best))
	for _, r := range best {
		score := r.Score
		candidates = append(candidates, Candidate{Item: r.Item, Similarity: &score})
	}

	assessments, err := s.Assess(ctx, customer, candidates)
	if err != nil {
		return nil, err
	}
	if len(assessments) > limit {
		assessments = assessments[:limit]
	}

	logging.From(ctx).Debug("assessed impact",
		slog.String("customer", customer.Name),
		slog.Int("queries", len(queries)),
		slog.Int("candidates", len(candidates)),
		slog.Int("assessments", len(assessments)),
	)
	return assessments, nil
}

// Sort orders by score descending, release date descending with undated
// items last, then ID ascending.
func Sort(assessments []*model.ImpactAssessment) {
	slices.SortStableFunc(assessments, func(a, b *model.ImpactAssessment) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		ra, rb := a.Item.ReleaseDate, b.Item.ReleaseDate
		switch {
		case ra != nil && rb == nil:
			return -1
		case ra == nil && rb != nil:
			return 1
		case ra != nil && rb != nil:
			if c := rb.Compare(*ra); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
}

// matchProducts returns the normalised customer products that name one of
// the item's products. "Teams" matches "Microsoft Teams" but not "Steams".
func matchProducts(customerProducts, itemProducts []string) []string {
	var matched []string
	for _, cp := range customerProducts {
		for _, ip := range itemProducts {
			if containsWord(ip, cp) || containsWord(cp, ip) {
				matched = append(matched, cp)
				break
			}
		}
	}
	return matched
}

// matchPlatforms returns the item platforms the customer mentions in its
// products, description or notes.
func matchPlatforms(customer *model.Customer, platforms []string) []string {
	text := strings.Join(append([]string{customer.Description, customer.Notes}, customer.Products...), "\n")
	var matched []string
	for _, p := range model.NormalizeSet(platforms) {
		if containsWord(text, p) {
			matched = append(matched, p)
		}
	}
	return matched
}

// containsWord reports whether word occurs in s case-insensitively and is
// not embedded in a longer word.
func containsWord(s, word string) bool {
	s, word = strings.ToLower(s), strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return false
	}
	for from := 0; from <= len(s)-len(word); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b < 0x80 && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)))
}

func rationale(products, platforms []string, semantic, score float64) string {
	var parts []string
	if len(products) > 0 {
		parts = append(parts, "affects "+strings.Join(products, ", "))
	} else {
		parts = append(parts, "no product overlap")
	}
	if len(platforms) > 0 {
		parts = append(parts, "platforms "+strings.Join(platforms, ", "))
	}
	parts = append(parts, fmt.Sprintf("semantic relevance %.2f", semantic))
	parts = append(parts, fmt.Sprintf("impact score %.2f", score))
	return strings.Join(parts, "; ")
}
