package models

import "time"

// ContextKind discriminates the two flavours of ranked context.
type ContextKind string

const (
	ContextKindEvent    ContextKind = "event"
	ContextKindAnalysis ContextKind = "analysis"
)

// ContextItem is a historical event or analysis annotated with a relevance
// score in [0,1]. Items live only for one ranking pass and are never
// persisted.
type ContextItem struct {
	Kind      ContextKind
	Event     *Event
	Analysis  *Analysis
	Relevance float64
}

// EventID returns the id of the underlying event or analysis.
func (c ContextItem) EventID() string {
	switch c.Kind {
	case ContextKindEvent:
		if c.Event != nil {
			return c.Event.EventID
		}
	case ContextKindAnalysis:
		if c.Analysis != nil {
			return c.Analysis.EventID
		}
	}
	return ""
}

// Analysis is the correlation result for a single event. A later analysis
// for the same event id supersedes earlier ones.
type Analysis struct {
	ID              string                 `json:"id"`
	EventID         string                 `json:"event_id"`
	RCA             string                 `json:"rca"`
	Confidence      float64                `json:"confidence"`
	Recommendations []string               `json:"recommendations"`
	SimilarEvents   []string               `json:"similar_events"`
	Trend           *TrendReport           `json:"trend,omitempty"`
	Impact          *ImpactReport          `json:"impact,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	// ResolutionTime is the recovery estimate in minutes taken from the
	// impact report at analysis time.
	ResolutionTime float64   `json:"resolution_time"`
	CreatedAt      time.Time `json:"created_at"`
}
