package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

const dateLayout = "2006-01-02"

func formatWindow(w model.ReportWindow) string {
	return fmt.Sprintf("%s to %s (UTC, end exclusive)", w.Start.UTC().Format(dateLayout), w.End.UTC().Format(dateLayout))
}

func releaseLabel(item *model.RoadmapItem) string {
	if item.ReleaseDate == nil {
		return "not announced"
	}
	return item.ReleaseDate.Format("January 2006")
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

// Render produces the report body. It depends only on its arguments so a
// rerun over the same data yields identical bytes.
func Render(customer *model.Customer, window model.ReportWindow, assessments []*model.ImpactAssessment, otherLimit int) string {
	var notable, other []*model.ImpactAssessment
	for _, a := range assessments {
		if a.Notable {
			notable = append(notable, a)
		} else {
			other = append(other, a)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Roadmap impact report: %s\n\n", customer.Name)
	fmt.Fprintf(&b, "- Window: %s\n", formatWindow(window))
	fmt.Fprintf(&b, "- Priority: %s\n", customer.Priority)
	if products := model.NormalizeSet(customer.Products); len(products) > 0 {
		fmt.Fprintf(&b, "- Products: %s\n", strings.Join(products, ", "))
	} else {
		b.WriteString("- Products: none recorded\n")
	}
	fmt.Fprintf(&b, "- Roadmap changes in window: %d\n", len(assessments))

	if len(assessments) == 0 {
		b.WriteString("\nNo roadmap changes in this window.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "\n## Notable changes (%d)\n", len(notable))
	if len(notable) == 0 {
		b.WriteString("\nNo notable changes for this customer in this window.\n")
	}
	for _, a := range notable {
		x := a.Item
		fmt.Fprintf(&b, "\n### %d: %s\n\n", x.ID, x.Title)
		fmt.Fprintf(&b, "- Status: %s\n", x.Status.Label())
		fmt.Fprintf(&b, "- Release: %s\n", releaseLabel(x))
		if len(x.Products) > 0 {
			fmt.Fprintf(&b, "- Products: %s\n", strings.Join(x.Products, ", "))
		}
		fmt.Fprintf(&b, "- Impact score: %.2f\n", a.Score)
		fmt.Fprintf(&b, "- Why: %s\n", a.Rationale)
	}

	if len(other) > 0 {
		fmt.Fprintf(&b, "\n## Other changes (%d)\n\n", len(other))
		b.WriteString("| ID | Title | Status | Score |\n|---|---|---|---|\n")
		shown := other
		if otherLimit >= 0 && len(shown) > otherLimit {
			shown = shown[:otherLimit]
		}
		for _, a := range shown {
			fmt.Fprintf(&b, "| %d | %s | %s | %.2f |\n", a.Item.ID, cell(a.Item.Title), a.Item.Status.Label(), a.Score)
		}
		if hidden := len(other) - len(shown); hidden > 0 {
			fmt.Fprintf(&b, "\n_%d more changes with lower scores are not listed._\n", hidden)
		}
	}
	return b.String()
}

// RenderBatch renders the digest of a batch grouped by customer priority,
// high first.
func RenderBatch(batch *Batch) string {
	var b strings.Builder
	b.WriteString("# Roadmap impact digest\n\n")
	fmt.Fprintf(&b, "- Window: %s\n", formatWindow(batch.Window))
	fmt.Fprintf(&b, "- Customers: %d reported, %d failed\n", len(batch.Reports), len(batch.Failures))

	groups := []struct {
		title    string
		priority model.Priority
	}{
		{"High priority customers", model.PriorityHigh},
		{"Medium priority customers", model.PriorityMedium},
		{"Low priority customers", model.PriorityLow},
	}
	for _, g := range groups {
		var reports []*model.Report
		for _, r := range batch.Reports {
			if r.Customer.Priority == g.priority {
				reports = append(reports, r)
			}
		}
		if len(reports) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n## %s\n", g.title)
		for _, r := range reports {
			notable := 0
			for _, a := range r.Assessments {
				if a.Notable {
					notable++
				}
			}
			fmt.Fprintf(&b, "\n### %s\n\n", r.Customer.Name)
			fmt.Fprintf(&b, "%d notable of %d changes.\n", notable, len(r.Assessments))
			if notable > 0 {
				b.WriteString("\n")
			}
			for _, a := range r.Assessments {
				if a.Notable {
					fmt.Fprintf(&b, "- %d: %s (%.2f)\n", a.Item.ID, a.Item.Title, a.Score)
				}
			}
		}
	}

	if len(batch.Failures) > 0 {
		b.WriteString("\n## Failed\n\n")
		for _, f := range batch.Failures {
			fmt.Fprintf(&b, "- %s: %s\n", f.Customer, f.Err.Error())
		}
	}
	return b.String()
}

// Key is the artifact key of a report generated at t.
func Key(customer string, t time.Time) string {
	return fmt.Sprintf("reports/%s/%s.md", slug(customer), t.UTC().Format("20060102T150405Z"))
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "customer"
	}
	return out
}
