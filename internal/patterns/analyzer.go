// Package patterns detects recurring issues, host stability and dependency
// candidates from ranked context.
package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/store"
)

// stabilityThreshold triggers a system-health recommendation below it.
const stabilityThreshold = 0.7

// Analyzer computes PatternReports. Reports are pure functions of the
// event, the ranked context and the host's recent-event window at call time.
type Analyzer struct {
	gateway     store.Gateway
	logger      *slog.Logger
	recentLimit int
}

// NewAnalyzer constructs an Analyzer; recentLimit bounds the host window
// used for stability and recovery (10 when non-positive).
func NewAnalyzer(gateway store.Gateway, logger *slog.Logger, recentLimit int) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &Analyzer{gateway: gateway, logger: logger, recentLimit: recentLimit}
}

// AnalyzePatterns builds the pattern report for one event and its ranked
// context.
func (a *Analyzer) AnalyzePatterns(ctx context.Context, event *models.Event, contextItems []models.ContextItem) (*models.PatternReport, error) {
	report := &models.PatternReport{
		RecurringIssues:   []models.RecurringIssue{},
		SeverityHistogram: make(map[int]int),
		UpstreamEvents:    []models.Event{},
		DownstreamEvents:  []models.Event{},
		Recommendations:   []models.Recommendation{},
	}

	contextEvents := eventsFromContext(contextItems)

	report.RecurringIssues = recurringIssues(contextEvents)
	for _, ce := range contextEvents {
		report.SeverityHistogram[ce.Severity]++
	}

	recent, err := a.gateway.GetEventsByHost(ctx, event.Host, a.recentLimit)
	if err != nil {
		return nil, err
	}
	report.Stability = stability(recent)
	report.RecoveryTime = recoveryTime(recent)

	report.UpstreamEvents, report.DownstreamEvents = dependencyChain(event, contextEvents)
	report.Recommendations = a.recommend(report)

	a.logger.Debug("pattern analysis complete",
		slog.String("event_id", event.EventID),
		slog.Int("recurring", len(report.RecurringIssues)),
		slog.Float64("stability", report.Stability))

	return report, nil
}

func eventsFromContext(items []models.ContextItem) []models.Event {
	events := make([]models.Event, 0, len(items))
	for _, item := range items {
		if item.Kind == models.ContextKindEvent && item.Event != nil {
			events = append(events, *item.Event)
		}
	}
	return events
}

// recurringIssues groups context events by host+trigger; any group seen more
// than once is reported, in first-occurrence order.
func recurringIssues(events []models.Event) []models.RecurringIssue {
	counts := make(map[string]int)
	order := make([]string, 0, len(events))
	for _, event := range events {
		key := event.Host + "_" + event.Trigger
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}

	issues := []models.RecurringIssue{}
	for _, key := range order {
		if counts[key] > 1 {
			issues = append(issues, models.RecurringIssue{Pattern: key, Count: counts[key]})
		}
	}
	return issues
}

// stability is the fraction of recent events that are not PROBLEM status.
// An empty window is vacuously stable.
func stability(recent []models.Event) float64 {
	if len(recent) == 0 {
		return 1.0
	}
	problems := 0
	for _, event := range recent {
		if event.Status == models.StatusProblem {
			problems++
		}
	}
	return 1.0 - float64(problems)/float64(len(recent))
}

// recoveryTime averages the gaps of adjacent PROBLEM->OK pairs in the
// recent window, scanned in ascending timestamp order. Non-adjacent pairs
// never match; nil when there is no pair at all.
func recoveryTime(recent []models.Event) *time.Duration {
	if len(recent) < 2 {
		return nil
	}
	ordered := append([]models.Event(nil), recent...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var total time.Duration
	pairs := 0
	for i := 0; i < len(ordered)-1; i++ {
		if ordered[i].Status == models.StatusProblem && ordered[i+1].Status == models.StatusOK {
			total += ordered[i+1].Timestamp.Sub(ordered[i].Timestamp)
			pairs++
		}
	}
	if pairs == 0 {
		return nil
	}
	mean := total / time.Duration(pairs)
	return &mean
}

// dependencyChain partitions context events around the current event's
// timestamp. Equal timestamps belong to neither side.
func dependencyChain(event *models.Event, contextEvents []models.Event) (upstream, downstream []models.Event) {
	upstream = []models.Event{}
	downstream = []models.Event{}
	for _, ce := range contextEvents {
		switch {
		case ce.Timestamp.Before(event.Timestamp):
			upstream = append(upstream, ce)
		case ce.Timestamp.After(event.Timestamp):
			downstream = append(downstream, ce)
		}
	}
	return upstream, downstream
}

func (a *Analyzer) recommend(report *models.PatternReport) []models.Recommendation {
	recommendations := []models.Recommendation{}

	if len(report.RecurringIssues) > 0 {
		recommendations = append(recommendations, models.Recommendation{
			Type:        "pattern_based",
			Priority:    "high",
			Description: fmt.Sprintf("Found %d recurring issues", len(report.RecurringIssues)),
			Action:      "Consider reconfiguring the system to avoid recurrence",
		})
	}
	if report.Stability < stabilityThreshold {
		recommendations = append(recommendations, models.Recommendation{
			Type:        "system_health",
			Priority:    "high",
			Description: "Low system stability",
			Action:      "Check and optimize system configuration",
		})
	}
	if len(report.UpstreamEvents) > 0 {
		recommendations = append(recommendations, models.Recommendation{
			Type:        "dependency",
			Priority:    "medium",
			Description: fmt.Sprintf("Found %d upstream events", len(report.UpstreamEvents)),
			Action:      "Check dependent services",
		})
	}

	return recommendations
}
