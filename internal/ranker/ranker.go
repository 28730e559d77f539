// Package ranker selects and scores historical context for a new event.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/store"
	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

// Relevance score weights. Recency and severity carry events; stored
// confidence carries analyses.
const (
	recencyWeight    = 0.3
	confidenceWeight = 0.4
	severityWeight   = 0.3
)

// DefaultMaxResults bounds the context when the caller passes no limit.
const DefaultMaxResults = 5

// Ranker retrieves a bounded, relevance-ordered set of historical events and
// analyses for a new event.
type Ranker struct {
	gateway store.Gateway
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a Ranker over the given store gateway.
func New(gateway store.Gateway, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{gateway: gateway, logger: logger, now: time.Now}
}

// GetRelevantContext returns at most maxResults events' worth of context
// items, sorted by relevance score descending. Ties keep store-natural
// order. Each event that has a stored analysis contributes a second item, so
// the returned slice may be longer than maxResults.
func (r *Ranker) GetRelevantContext(ctx context.Context, event *models.Event, maxResults int) ([]models.ContextItem, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	candidates, err := r.gatherCandidates(ctx, event, maxResults)
	if err != nil {
		return nil, err
	}

	items := make([]models.ContextItem, 0, len(candidates)*2)
	for i := range candidates {
		candidate := candidates[i]
		items = append(items, models.ContextItem{
			Kind:      models.ContextKindEvent,
			Event:     &candidate,
			Relevance: r.scoreEvent(&candidate),
		})

		analysis, err := r.gateway.GetAnalysis(ctx, candidate.EventID)
		if err != nil {
			return nil, err
		}
		if analysis != nil {
			items = append(items, models.ContextItem{
				Kind:      models.ContextKindAnalysis,
				Analysis:  analysis,
				Relevance: scoreAnalysis(analysis),
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Relevance > items[j].Relevance
	})

	r.logger.Debug("context ranked",
		slog.String("event_id", event.EventID),
		slog.Int("items", len(items)))

	return items, nil
}

// gatherCandidates unions the three candidate queries, deduplicates by event
// id (first occurrence wins) and truncates to maxResults events.
func (r *Ranker) gatherCandidates(ctx context.Context, event *models.Event, maxResults int) ([]models.Event, error) {
	hostTrigger, err := r.gateway.FindSimilarEvents(ctx, event, maxResults)
	if err != nil {
		return nil, err
	}
	bySeverity, err := r.gateway.GetEventsBySeverity(ctx, event.Severity, maxResults)
	if err != nil {
		return nil, err
	}
	recent, err := r.gateway.GetRecentEvents(ctx, maxResults)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	unique := make([]models.Event, 0, maxResults)
	for _, batch := range [][]models.Event{hostTrigger, bySeverity, recent} {
		for _, candidate := range batch {
			if _, ok := seen[candidate.EventID]; ok {
				continue
			}
			seen[candidate.EventID] = struct{}{}
			unique = append(unique, candidate)
		}
	}
	if len(unique) > maxResults {
		unique = unique[:maxResults]
	}
	return unique, nil
}

// scoreEvent combines recency and severity; events carry no stored
// confidence.
func (r *Ranker) scoreEvent(event *models.Event) float64 {
	score := 0.0
	if !event.Timestamp.IsZero() {
		days := utils.DaysSince(r.now().UTC(), event.Timestamp)
		score += recencyWeight * (1.0 / (1.0 + float64(days)))
	}
	score += severityWeight * float64(event.Severity) / float64(models.SeverityMax)
	return utils.Clamp(score, 0, 1)
}

// scoreAnalysis uses only the stored confidence: analyses carry neither an
// event timestamp nor a severity.
func scoreAnalysis(analysis *models.Analysis) float64 {
	return utils.Clamp(confidenceWeight*analysis.Confidence, 0, 1)
}

// FormatContext renders ranked context into the historical section of the
// model prompt. Analyses are shown inline under their event.
func FormatContext(items []models.ContextItem) string {
	var b strings.Builder
	b.WriteString("Historical Context:\n")

	for _, item := range items {
		if item.Kind != models.ContextKindEvent || item.Event == nil {
			continue
		}
		event := item.Event
		fmt.Fprintf(&b, "\nEvent ID: %s\n", event.EventID)
		fmt.Fprintf(&b, "Host: %s\n", event.Host)
		fmt.Fprintf(&b, "Trigger: %s\n", event.Trigger)
		fmt.Fprintf(&b, "Severity: %d\n", event.Severity)
		fmt.Fprintf(&b, "Value: %s\n", event.Value)
		fmt.Fprintf(&b, "Timestamp: %s\n", event.Timestamp.Format(time.RFC3339))

		for _, other := range items {
			if other.Kind != models.ContextKindAnalysis || other.Analysis == nil {
				continue
			}
			if other.Analysis.EventID != event.EventID {
				continue
			}
			analysis := other.Analysis
			b.WriteString("\nAnalysis:\n")
			fmt.Fprintf(&b, "RCA: %s\n", analysis.RCA)
			fmt.Fprintf(&b, "Confidence: %g\n", analysis.Confidence)
			fmt.Fprintf(&b, "Recommendations: %s\n", strings.Join(analysis.Recommendations, ", "))
			break
		}

		b.WriteString("\n" + strings.Repeat("-", 50) + "\n")
	}

	return b.String()
}
