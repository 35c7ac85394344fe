package model

import (
	"slices"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority returns PriorityMedium for an empty string.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", ErrInvalidPriority
	}
}

// Rank orders priorities from high (0) to low (2).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Customer struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Products    []string `json:"products"`
	Priority    Priority `json:"priority"`
	Notes       string   `json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the text compared against roadmap documents when no retrieval
// similarity is available.
func (c *Customer) Profile() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if products := NormalizeSet(c.Products); len(products) > 0 {
		b.WriteString("\nProducts: " + strings.Join(products, ", "))
	}
	if d := strings.TrimSpace(c.Description); d != "" {
		b.WriteString("\n" + d)
	}
	return b.String()
}

func (c *Customer) Copy() *Customer {
	if c == nil {
		return nil
	}
	x := *c
	x.Products = slices.Clone(c.Products)
	return &x
}

// CustomerUpdate holds the fields to change. Nil fields are left untouched.
type CustomerUpdate struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Products    *[]string `json:"products,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
}

func (u *CustomerUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Products == nil && u.Priority == nil && u.Notes == nil
}

// Apply returns an updated copy of c. Timestamps are not touched.
func (u *CustomerUpdate) Apply(c *Customer) *Customer {
	x := c.Copy()
	if u.Name != nil {
		x.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		x.Description = *u.Description
	}
	if u.Products != nil {
		x.Products = NormalizeSet(*u.Products)
	}
	if u.Priority != nil {
		x.Priority = *u.Priority
	}
	if u.Notes != nil {
		x.Notes = *u.Notes
	}
	return x
}

// NextUpdatedAt returns a timestamp strictly after prev, using now when it is
// already later.
func NextUpdatedAt(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}
