package model

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"
)

type RoadmapStatus string

const (
	StatusPlanned    RoadmapStatus = "planned"
	StatusRollingOut RoadmapStatus = "rolling_out"
	StatusLaunched   RoadmapStatus = "launched"
	StatusCancelled  RoadmapStatus = "cancelled"
)

// ParseStatus accepts both the roadmap export labels ("In development",
// "Rolling out", ...) and the snake_case form.
func ParseStatus(s string) (RoadmapStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "planned", "in development", "in_development":
		return StatusPlanned, true
	case "rolling_out", "rolling out":
		return StatusRollingOut, true
	case "launched":
		return StatusLaunched, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	default:
		return "", false
	}
}

// Label returns the human readable status used in roadmap documents.
func (s RoadmapStatus) Label() string {
	switch s {
	case StatusPlanned:
		return "In development"
	case StatusRollingOut:
		return "Rolling out"
	case StatusLaunched:
		return "Launched"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

type RoadmapItem struct {
	ID             int64
	Title          string
	Description    string
	Status         RoadmapStatus
	ReleaseDate    *time.Time
	Products       []string
	Platforms      []string
	CloudInstances []string
	ReleasePhase   string

	// ModifiedAt is the upstream modification time of the item.
	ModifiedAt time.Time

	Embedding    []float32
	DocumentHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document renders the canonical text that is embedded for the item. The
// output depends only on the descriptive fields, and set-valued fields are
// sorted so that input order never changes the document.
func (x *RoadmapItem) Document() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(x.Title))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(x.Description))
	b.WriteString("\n\n")
	b.WriteString("Status: " + x.Status.Label())
	b.WriteString("\nProducts: " + strings.Join(NormalizeSet(x.Products), ", "))
	b.WriteString("\nPlatforms: " + strings.Join(NormalizeSet(x.Platforms), ", "))
	if clouds := NormalizeSet(x.CloudInstances); len(clouds) > 0 {
		b.WriteString("\nCloud instances: " + strings.Join(clouds, ", "))
	}
	if phase := strings.TrimSpace(x.ReleasePhase); phase != "" {
		b.WriteString("\nRelease phase: " + phase)
	}
	if x.ReleaseDate != nil {
		b.WriteString("\nRelease date: " + x.ReleaseDate.UTC().Format("January 2006"))
	}
	return b.String()
}

// Hash returns the sha256 of Document in hex.
func (x *RoadmapItem) Hash() string {
	sum := sha256.Sum256([]byte(x.Document()))
	return hex.EncodeToString(sum[:])
}

// HasStaleEmbedding is true when the stored embedding was generated for a
// different document than the current one.
func (x *RoadmapItem) HasStaleEmbedding() bool {
	return len(x.Embedding) == 0 || x.DocumentHash != x.Hash()
}

// Copy returns a deep copy so that stored items are never aliased.
func (x *RoadmapItem) Copy() *RoadmapItem {
	if x == nil {
		return nil
	}
	c := *x
	c.Products = slices.Clone(x.Products)
	c.Platforms = slices.Clone(x.Platforms)
	c.CloudInstances = slices.Clone(x.CloudInstances)
	c.Embedding = slices.Clone(x.Embedding)
	if x.ReleaseDate != nil {
		d := *x.ReleaseDate
		c.ReleaseDate = &d
	}
	return &c
}

// NormalizeSet trims, drops empty values, removes case-insensitive
// duplicates and sorts.
func NormalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}

// RoadmapStats summarizes the stored roadmap.
type RoadmapStats struct {
	Total    int                   `json:"total"`
	ByStatus map[RoadmapStatus]int `json:"by_status"`
}
