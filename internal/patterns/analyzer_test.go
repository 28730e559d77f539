package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/zabbixstack/zabbix-rca/internal/models"
)

type fakeGateway struct {
	hostEvents []models.Event
	err        error
}

func (f *fakeGateway) SaveEvent(ctx context.Context, event *models.Event) (string, error) {
	return event.EventID, nil
}

func (f *fakeGateway) SaveAnalysis(ctx context.Context, analysis *models.Analysis) (string, error) {
	return analysis.ID, nil
}

func (f *fakeGateway) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) GetAnalysis(ctx context.Context, eventID string) (*models.Analysis, error) {
	return nil, nil
}

func (f *fakeGateway) FindSimilarEvents(ctx context.Context, event *models.Event, limit int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) GetEventsByHost(ctx context.Context, host string, limit int) ([]models.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hostEvents, nil
}

func (f *fakeGateway) GetEventsByHostAndTrigger(ctx context.Context, host, trigger string, start, end time.Time) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) GetEventsBySeverity(ctx context.Context, severity, limit int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) FindSimilarTriggers(ctx context.Context, pattern string, limit int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) Statistics(ctx context.Context) (*models.Statistics, error) {
	return &models.Statistics{}, nil
}

func (f *fakeGateway) Close() error { return nil }

func event(id, host, trigger string, severity int, status models.Status, ts time.Time) models.Event {
	return models.Event{
		EventID:   id,
		Host:      host,
		Trigger:   trigger,
		Severity:  severity,
		Status:    status,
		Timestamp: ts,
	}
}

func contextItems(events ...models.Event) []models.ContextItem {
	items := make([]models.ContextItem, 0, len(events))
	for i := range events {
		items = append(items, models.ContextItem{Kind: models.ContextKindEvent, Event: &events[i]})
	}
	return items
}

func TestAnalyzePatternsNoHistory(t *testing.T) {
	a := NewAnalyzer(&fakeGateway{}, nil, 10)
	current := event("ev-1", "db1", "CPU>90", 4, models.StatusProblem, time.Now().UTC())

	report, err := a.AnalyzePatterns(context.Background(), &current, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Stability != 1.0 {
		t.Fatalf("expected vacuous stability 1.0, got %v", report.Stability)
	}
	if len(report.RecurringIssues) != 0 {
		t.Fatalf("expected no recurring issues, got %v", report.RecurringIssues)
	}
	if report.RecoveryTime != nil {
		t.Fatalf("expected no recovery time, got %v", *report.RecoveryTime)
	}
	if len(report.Recommendations) != 0 {
		t.Fatalf("expected no recommendations, got %v", report.Recommendations)
	}
}

func TestRecurringIssues(t *testing.T) {
	ts := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	items := contextItems(
		event("ev-1", "db1", "CPU>90", 4, models.StatusProblem, ts),
		event("ev-2", "db1", "CPU>90", 4, models.StatusProblem, ts.Add(time.Hour)),
		event("ev-3", "web1", "HTTP 5xx", 3, models.StatusProblem, ts.Add(2*time.Hour)),
	)
	a := NewAnalyzer(&fakeGateway{}, nil, 10)
	current := event("ev-4", "db1", "CPU>90", 4, models.StatusProblem, ts.Add(3*time.Hour))

	report, err := a.AnalyzePatterns(context.Background(), &current, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.RecurringIssues) != 1 {
		t.Fatalf("expected 1 recurring issue, got %v", report.RecurringIssues)
	}
	issue := report.RecurringIssues[0]
	if issue.Pattern != "db1_CPU>90" || issue.Count != 2 {
		t.Fatalf("unexpected recurring issue %+v", issue)
	}
	if report.SeverityHistogram[4] != 2 || report.SeverityHistogram[3] != 1 {
		t.Fatalf("unexpected severity histogram %v", report.SeverityHistogram)
	}
}

func TestStabilityAndRecommendation(t *testing.T) {
	ts := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	gateway := &fakeGateway{hostEvents: []models.Event{
		event("ev-1", "db1", "CPU>90", 4, models.StatusProblem, ts),
		event("ev-2", "db1", "CPU>90", 4, models.StatusProblem, ts.Add(time.Hour)),
		event("ev-3", "db1", "CPU>90", 1, models.StatusOK, ts.Add(2*time.Hour)),
		event("ev-4", "db1", "disk low", 2, models.StatusProblem, ts.Add(3*time.Hour)),
	}}
	a := NewAnalyzer(gateway, nil, 10)
	current := event("ev-5", "db1", "CPU>90", 4, models.StatusProblem, ts.Add(4*time.Hour))

	report, err := a.AnalyzePatterns(context.Background(), &current, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Stability != 0.25 {
		t.Fatalf("expected stability 0.25, got %v", report.Stability)
	}

	found := false
	for _, rec := range report.Recommendations {
		if rec.Type == "system_health" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected system_health recommendation below stability threshold, got %v", report.Recommendations)
	}
}

// Adjacent-only pairing: in a PROBLEM, PROBLEM, OK sequence only the second
// PROBLEM pairs with the OK.
func TestRecoveryTimeAdjacentPairsOnly(t *testing.T) {
	ts := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	gateway := &fakeGateway{hostEvents: []models.Event{
		event("ev-1", "db1", "CPU>90", 4, models.StatusProblem, ts),
		event("ev-2", "db1", "CPU>90", 4, models.StatusProblem, ts.Add(10*time.Minute)),
		event("ev-3", "db1", "CPU>90", 0, models.StatusOK, ts.Add(30*time.Minute)),
	}}
	a := NewAnalyzer(gateway, nil, 10)
	current := event("ev-4", "db1", "CPU>90", 4, models.StatusProblem, ts.Add(time.Hour))

	report, err := a.AnalyzePatterns(context.Background(), &current, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RecoveryTime == nil {
		t.Fatal("expected a recovery time")
	}
	if *report.RecoveryTime != 20*time.Minute {
		t.Fatalf("expected 20m from the adjacent pair only, got %v", *report.RecoveryTime)
	}
}

func TestRecoveryTimeNewestFirstInput(t *testing.T) {
	// Store queries return newest-first; the scan must still find the
	// chronologically adjacent pair.
	ts := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	gateway := &fakeGateway{hostEvents: []models.Event{
		event("ev-2", "db1", "CPU>90", 0, models.StatusOK, ts.Add(15*time.Minute)),
		event("ev-1", "db1", "CPU>90", 4, models.StatusProblem, ts),
	}}
	a := NewAnalyzer(gateway, nil, 10)
	current := event("ev-3", "db1", "CPU>90", 4, models.StatusProblem, ts.Add(time.Hour))

	report, err := a.AnalyzePatterns(context.Background(), &current, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RecoveryTime == nil || *report.RecoveryTime != 15*time.Minute {
		t.Fatalf("expected 15m recovery, got %v", report.RecoveryTime)
	}
}

func TestDependencyChainPartition(t *testing.T) {
	ts := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	items := contextItems(
		event("ev-before", "web1", "HTTP 5xx", 3, models.StatusProblem, ts.Add(-time.Hour)),
		event("ev-equal", "web2", "HTTP 5xx", 3, models.StatusProblem, ts),
		event("ev-after", "web3", "HTTP 5xx", 3, models.StatusProblem, ts.Add(time.Hour)),
	)
	a := NewAnalyzer(&fakeGateway{}, nil, 10)
	current := event("ev-current", "db1", "CPU>90", 4, models.StatusProblem, ts)

	report, err := a.AnalyzePatterns(context.Background(), &current, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.UpstreamEvents) != 1 || report.UpstreamEvents[0].EventID != "ev-before" {
		t.Fatalf("unexpected upstream events %v", report.UpstreamEvents)
	}
	if len(report.DownstreamEvents) != 1 || report.DownstreamEvents[0].EventID != "ev-after" {
		t.Fatalf("unexpected downstream events %v", report.DownstreamEvents)
	}
}
