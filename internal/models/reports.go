package models

import "time"

// RecurringIssue counts repeated occurrences of one host+trigger pattern
// inside the ranked context.
type RecurringIssue struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// Recommendation is a suggested operator action derived from pattern
// analysis.
type Recommendation struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// PatternReport summarises recurring issues, host health and dependency
// candidates for one event. It is a pure function of the event, the ranked
// context and the host's recent-event window at computation time.
type PatternReport struct {
	RecurringIssues   []RecurringIssue `json:"recurring_issues"`
	SeverityHistogram map[int]int      `json:"severity_histogram"`
	// Stability is the fraction of the host's recent events that are not
	// PROBLEM status; 1.0 when the window is empty.
	Stability float64 `json:"system_stability"`
	// RecoveryTime is the mean delta of adjacent PROBLEM->OK pairs in the
	// recent-event window, nil when no such pair exists.
	RecoveryTime     *time.Duration   `json:"recovery_time,omitempty"`
	UpstreamEvents   []Event          `json:"upstream_events"`
	DownstreamEvents []Event          `json:"downstream_events"`
	Recommendations  []Recommendation `json:"recommendations"`
}

// FrequencyTrend reports hourly event-count statistics over the window.
type FrequencyTrend struct {
	TotalEvents    int     `json:"total_events"`
	AveragePerHour float64 `json:"average_per_hour"`
	MaxPerHour     int     `json:"max_per_hour"`
	MinPerHour     int     `json:"min_per_hour"`
	Trend          string  `json:"trend"`
}

// SeverityTrend reports severity statistics over the window.
type SeverityTrend struct {
	Average float64 `json:"average_severity"`
	Max     int     `json:"max_severity"`
	Trend   string  `json:"trend"`
}

// RecoveryTrend reports PROBLEM-to-OK gap statistics in minutes.
type RecoveryTrend struct {
	AverageMinutes float64   `json:"average_recovery_time"`
	MinMinutes     float64   `json:"min_recovery_time"`
	MaxMinutes     float64   `json:"max_recovery_time"`
	Samples        []float64 `json:"recovery_times"`
}

// Trend direction labels. A flat or single-sample series reports
// TrendDecreasing: the rule is mean(first differences) > 0, and zero is not
// greater than zero. Downstream recommendations depend on this tie-break.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
)

// TrendReport describes sliding-window behaviour of one host+trigger.
// HasTrend false is the no-data sentinel, not an error.
type TrendReport struct {
	HasTrend    bool            `json:"has_trend"`
	WindowHours int             `json:"time_range,omitempty"`
	TotalEvents int             `json:"total_events,omitempty"`
	Frequency   *FrequencyTrend `json:"frequency_analysis,omitempty"`
	Severity    *SeverityTrend  `json:"severity_analysis,omitempty"`
	Recovery    *RecoveryTrend  `json:"recovery_analysis,omitempty"`
}

// NoTrend is the sentinel returned when the window query yields no events.
func NoTrend() *TrendReport {
	return &TrendReport{HasTrend: false}
}

// Impact type categories derived from event severity.
const (
	ImpactCritical = "CRITICAL"
	ImpactHigh     = "HIGH"
	ImpactMedium   = "MEDIUM"
	ImpactLow      = "LOW"
)

// Required action labels attached to direct impact.
const (
	ActionImmediateInvestigation = "IMMEDIATE_INVESTIGATION"
	ActionNotifyTeam             = "NOTIFY_TEAM"
	ActionScheduleMaintenance    = "SCHEDULE_MAINTENANCE"
)

// DirectImpact captures the severity-derived assessment of the event itself.
type DirectImpact struct {
	SeverityLevel   int      `json:"severity_level"`
	AffectedHost    string   `json:"affected_host"`
	AffectedItem    string   `json:"affected_item"`
	ImpactType      string   `json:"impact_type"`
	RequiredActions []string `json:"immediate_actions_required"`
}

// CascadeLink is a later related event annotated with its delay after the
// current event.
type CascadeLink struct {
	EventID      string  `json:"event_id"`
	DelayMinutes float64 `json:"delay"`
	Severity     int     `json:"severity"`
}

// CascadeEffect summarises events that followed the current one.
type CascadeEffect struct {
	HasCascade      bool          `json:"has_cascade"`
	Chain           []CascadeLink `json:"cascade_chain"`
	MaxDelayMinutes float64       `json:"max_cascade_delay"`
}

// BusinessImpact estimates organisational exposure from affected services.
type BusinessImpact struct {
	AffectedServiceCount int     `json:"affected_services_count"`
	BusinessCritical     bool    `json:"business_critical"`
	EstimatedCost        float64 `json:"estimated_cost"`
}

// IndirectImpact covers cascading and business-level consequences.
type IndirectImpact struct {
	AffectedServices []string       `json:"affected_services"`
	AffectedUsers    []string       `json:"affected_users"`
	Cascade          CascadeEffect  `json:"cascade_effect"`
	Business         BusinessImpact `json:"business_impact"`
}

// ImpactTiming flags when the event landed relative to business and peak
// hours, with a duration estimate in minutes.
type ImpactTiming struct {
	IsBusinessHours bool    `json:"is_business_hours"`
	IsPeakHours     bool    `json:"is_peak_hours"`
	DurationMinutes float64 `json:"duration"`
}

// RecoveryEstimate predicts time to recovery from historical OK events.
// Confidence grows with sample count, capped at 1.
type RecoveryEstimate struct {
	EstimatedMinutes float64 `json:"estimated_minutes"`
	Confidence       float64 `json:"confidence"`
}

// HistoricalPattern describes how often related events have occurred.
type HistoricalPattern struct {
	HasPattern  bool    `json:"has_pattern"`
	Frequency   float64 `json:"frequency,omitempty"`
	IsRecurring bool    `json:"is_recurring,omitempty"`
	PatternType string  `json:"pattern_type,omitempty"`
}

// TemporalImpact groups the time-dependent impact assessment.
type TemporalImpact struct {
	Timing     ImpactTiming      `json:"timing"`
	Recovery   RecoveryEstimate  `json:"recovery_estimate"`
	Historical HistoricalPattern `json:"historical_pattern"`
}

// ImpactReport combines direct, indirect and temporal impact with a single
// composite score weighted 0.4/0.3/0.3.
type ImpactReport struct {
	Direct             DirectImpact   `json:"direct_impact"`
	Indirect           IndirectImpact `json:"indirect_impact"`
	Temporal           TemporalImpact `json:"temporal_impact"`
	RelatedEventsCount int            `json:"related_events_count"`
	Score              float64        `json:"impact_score"`
}

// Statistics aggregates store-wide event counts for the health surface.
type Statistics struct {
	TotalEvents   int         `json:"total_events"`
	ProblemEvents int         `json:"problem_events"`
	OKEvents      int         `json:"ok_events"`
	BySeverity    map[int]int `json:"severity_distribution"`
}
