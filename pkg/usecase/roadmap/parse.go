package roadmap

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

type exportTag struct {
	TagName string `json:"tagName"`
}

type exportItem struct {
	ID                               json.Number `json:"id"`
	Title                            string      `json:"title"`
	Description                      string      `json:"description"`
	Status                           string      `json:"status"`
	PublicDisclosureAvailabilityDate string      `json:"publicDisclosureAvailabilityDate"`
	Created                          string      `json:"created"`
	Modified                         string      `json:"modified"`
	TagsContainer                    struct {
		Products       []exportTag `json:"products"`
		Platforms      []exportTag `json:"platforms"`
		CloudInstances []exportTag `json:"cloudInstances"`
		ReleasePhase   []exportTag `json:"releasePhase"`
	} `json:"tagsContainer"`
}

// Parse reads the JSON array of the Microsoft 365 roadmap export.
// Entries without a usable ID or status are skipped and reported in the
// second return value.
func Parse(r io.Reader) ([]*model.RoadmapItem, []error, error) {
	var raw []exportItem
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, goerr.Wrap(model.ErrInvalidArgument, "failed to decode roadmap export", goerr.V("cause", err.Error()))
	}

	items := make([]*model.RoadmapItem, 0, len(raw))
	var skipped []error
	for i, x := range raw {
		item, err := x.toModel()
		if err != nil {
			skipped = append(skipped, goerr.Wrap(err, "skipped roadmap entry", goerr.V("index", i)))
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

func (x *exportItem) toModel() (*model.RoadmapItem, error) {
	id, err := strconv.ParseInt(x.ID.String(), 10, 64)
	if err != nil || id <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "invalid roadmap id", goerr.V("id", x.ID.String()))
	}
	status, ok := model.ParseStatus(x.Status)
	if !ok {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "unknown roadmap status",
			goerr.V("id", id), goerr.V("status", x.Status))
	}

	item := &model.RoadmapItem{
		ID:             id,
		Title:          strings.TrimSpace(x.Title),
		Description:    strings.TrimSpace(x.Description),
		Status:         status,
		ReleaseDate:    parseDisclosureDate(x.PublicDisclosureAvailabilityDate),
		Products:       model.NormalizeSet(tagNames(x.TagsContainer.Products)),
		Platforms:      model.NormalizeSet(tagNames(x.TagsContainer.Platforms)),
		CloudInstances: model.NormalizeSet(tagNames(x.TagsContainer.CloudInstances)),
	}
	if phases := tagNames(x.TagsContainer.ReleasePhase); len(phases) > 0 {
		item.ReleasePhase = strings.TrimSpace(phases[0])
	}

	modified := x.Modified
	if modified == "" {
		modified = x.Created
	}
	if t, ok := parseTimestamp(modified); ok {
		item.ModifiedAt = t
	}
	return item, nil
}

func tagNames(tags []exportTag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.TagName)
	}
	return names
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseDisclosureDate understands "October CY2025" and "October 2025" and
// returns the first day of that month.
func parseDisclosureDate(s string) *time.Time {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil
	}
	year := strings.TrimPrefix(strings.ToUpper(fields[1]), "CY")
	t, err := time.Parse("January 2006", fields[0]+" "+year)
	if err != nil {
		return nil
	}
	return &t
}
