package model

import "time"

// RetrievalResult is one ranked hit of a semantic roadmap query.
type RetrievalResult struct {
	Item  *RoadmapItem
	Score float64
	Rank  int
}

type ImpactAssessment struct {
	Customer         *Customer
	Item             *RoadmapItem
	Score            float64
	Rationale        string
	MatchedProducts  []string
	MatchedPlatforms []string
	Notable          bool
}

// ReportWindow is the half-open interval [Start, End) of roadmap changes a
// report covers.
type ReportWindow struct {
	Start time.Time
	End   time.Time
}

func (w ReportWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

type Report struct {
	Customer    *Customer
	Window      ReportWindow
	Assessments []*ImpactAssessment

	// Body is fully determined by Customer, Window and Assessments.
	Body string

	GeneratedAt time.Time
	// Key is the artifact key the report was written to, if any.
	Key string
}
