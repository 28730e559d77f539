// Package impact assesses direct, indirect and temporal consequences of an
// event against its related history.
package impact

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/store"
	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

// Composite score weights for direct/indirect/temporal components.
const (
	directWeight   = 0.4
	indirectWeight = 0.3
	temporalWeight = 0.3
)

// Related-event query bounds.
const (
	relatedHostLimit    = 100
	relatedTriggerLimit = 10
)

// baseCostPerHour is the assumed downtime cost before multipliers.
const baseCostPerHour = 1000.0

// businessCriticalServices flag business impact when affected.
var businessCriticalServices = map[string]struct{}{
	"core":    {},
	"payment": {},
	"auth":    {},
}

// Analyzer computes ImpactReports. Related events are fetched independently
// from the store, so the report is a pure function of store state at call
// time.
type Analyzer struct {
	gateway store.Gateway
	logger  *slog.Logger
}

// NewAnalyzer constructs an impact Analyzer.
func NewAnalyzer(gateway store.Gateway, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gateway: gateway, logger: logger}
}

// AnalyzeImpact builds the impact report for one event.
func (a *Analyzer) AnalyzeImpact(ctx context.Context, event *models.Event) (*models.ImpactReport, error) {
	related, err := a.findRelatedEvents(ctx, event)
	if err != nil {
		return nil, err
	}

	indirect := analyzeIndirect(event, related)
	report := &models.ImpactReport{
		Direct:             analyzeDirect(event),
		Indirect:           indirect,
		Temporal:           analyzeTemporal(event, related),
		RelatedEventsCount: len(related),
	}
	report.Score = compositeScore(event, &report.Indirect, &report.Temporal)

	a.logger.Debug("impact analysis complete",
		slog.String("event_id", event.EventID),
		slog.String("impact_type", report.Direct.ImpactType),
		slog.Float64("score", report.Score))

	return report, nil
}

// findRelatedEvents unions same-host events with case-insensitive trigger
// matches, deduplicated by event id (first occurrence wins).
func (a *Analyzer) findRelatedEvents(ctx context.Context, event *models.Event) ([]models.Event, error) {
	hostEvents, err := a.gateway.GetEventsByHost(ctx, event.Host, relatedHostLimit)
	if err != nil {
		return nil, err
	}
	triggerEvents, err := a.gateway.FindSimilarTriggers(ctx, event.Trigger, relatedTriggerLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	related := make([]models.Event, 0, len(hostEvents)+len(triggerEvents))
	for _, batch := range [][]models.Event{hostEvents, triggerEvents} {
		for _, candidate := range batch {
			if _, ok := seen[candidate.EventID]; ok {
				continue
			}
			seen[candidate.EventID] = struct{}{}
			related = append(related, candidate)
		}
	}
	return related, nil
}

func analyzeDirect(event *models.Event) models.DirectImpact {
	return models.DirectImpact{
		SeverityLevel:   event.Severity,
		AffectedHost:    event.Host,
		AffectedItem:    event.Item,
		ImpactType:      impactType(event.Severity),
		RequiredActions: requiredActions(event.Severity),
	}
}

func impactType(severity int) string {
	switch {
	case severity >= 4:
		return models.ImpactCritical
	case severity >= 3:
		return models.ImpactHigh
	case severity >= 2:
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

func requiredActions(severity int) []string {
	actions := []string{}
	if severity >= 4 {
		actions = append(actions, models.ActionImmediateInvestigation, models.ActionNotifyTeam)
	}
	if severity >= 3 {
		actions = append(actions, models.ActionScheduleMaintenance)
	}
	return actions
}

func analyzeIndirect(event *models.Event, related []models.Event) models.IndirectImpact {
	services := uniqueTagValues(related, "service")
	users := uniqueTagValues(related, "user_impact")

	return models.IndirectImpact{
		AffectedServices: services,
		AffectedUsers:    users,
		Cascade:          cascadeEffect(event, related),
		Business:         businessImpact(event, services),
	}
}

// uniqueTagValues collects distinct tag values across related events,
// preserving first-occurrence order.
func uniqueTagValues(events []models.Event, key string) []string {
	seen := make(map[string]struct{})
	values := []string{}
	for _, event := range events {
		for _, value := range event.TagValues(key) {
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			values = append(values, value)
		}
	}
	return values
}

// cascadeEffect chains related events that followed the current one,
// annotated with their delay in minutes.
func cascadeEffect(event *models.Event, related []models.Event) models.CascadeEffect {
	chain := []models.CascadeLink{}
	maxDelay := 0.0
	for _, candidate := range related {
		if !candidate.Timestamp.After(event.Timestamp) {
			continue
		}
		delay := utils.DurationMinutes(event.Timestamp, candidate.Timestamp)
		chain = append(chain, models.CascadeLink{
			EventID:      candidate.EventID,
			DelayMinutes: delay,
			Severity:     candidate.Severity,
		})
		if delay > maxDelay {
			maxDelay = delay
		}
	}
	return models.CascadeEffect{
		HasCascade:      len(chain) > 0,
		Chain:           chain,
		MaxDelayMinutes: maxDelay,
	}
}

func businessImpact(event *models.Event, services []string) models.BusinessImpact {
	critical := false
	for _, service := range services {
		if _, ok := businessCriticalServices[service]; ok {
			critical = true
			break
		}
	}

	severityMultiplier := float64(event.Severity) / 2
	serviceMultiplier := float64(len(services)) * 0.5
	cost := baseCostPerHour * severityMultiplier * (1 + serviceMultiplier)

	return models.BusinessImpact{
		AffectedServiceCount: len(services),
		BusinessCritical:     critical,
		EstimatedCost:        cost,
	}
}

func analyzeTemporal(event *models.Event, related []models.Event) models.TemporalImpact {
	hour := event.Timestamp.Hour()
	weekday := isWeekday(event.Timestamp)

	return models.TemporalImpact{
		Timing: models.ImpactTiming{
			IsBusinessHours: weekday && hour >= 9 && hour <= 17,
			IsPeakHours:     weekday && ((hour >= 10 && hour <= 12) || (hour >= 14 && hour <= 16)),
			DurationMinutes: estimateDuration(event, related),
		},
		Recovery:   estimateRecovery(event, related),
		Historical: historicalPattern(related),
	}
}

func isWeekday(ts time.Time) bool {
	wd := ts.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// estimateDuration is the gap to the chronologically earliest OK event
// after the current one, zero when no such event exists.
func estimateDuration(event *models.Event, related []models.Event) float64 {
	laterOKs := laterOKEvents(event, related)
	if len(laterOKs) == 0 {
		return 0
	}
	return utils.DurationMinutes(event.Timestamp, laterOKs[0].Timestamp)
}

// estimateRecovery averages the gaps to every later OK event; confidence
// grows with sample count and saturates at ten samples.
func estimateRecovery(event *models.Event, related []models.Event) models.RecoveryEstimate {
	laterOKs := laterOKEvents(event, related)
	if len(laterOKs) == 0 {
		return models.RecoveryEstimate{}
	}
	sum := 0.0
	for _, ok := range laterOKs {
		sum += utils.DurationMinutes(event.Timestamp, ok.Timestamp)
	}
	return models.RecoveryEstimate{
		EstimatedMinutes: sum / float64(len(laterOKs)),
		Confidence:       utils.Clamp(float64(len(laterOKs))/10, 0, 1),
	}
}

func laterOKEvents(event *models.Event, related []models.Event) []models.Event {
	var laterOKs []models.Event
	for _, candidate := range related {
		if candidate.Status == models.StatusOK && candidate.Timestamp.After(event.Timestamp) {
			laterOKs = append(laterOKs, candidate)
		}
	}
	sort.SliceStable(laterOKs, func(i, j int) bool {
		return laterOKs[i].Timestamp.Before(laterOKs[j].Timestamp)
	})
	return laterOKs
}

// historicalPattern treats the related count as a 30-day sample, flagging
// recurrence above one event per day-equivalent.
func historicalPattern(related []models.Event) models.HistoricalPattern {
	if len(related) == 0 {
		return models.HistoricalPattern{HasPattern: false}
	}
	frequency := float64(len(related)) / 30
	patternType := "sporadic"
	if frequency > 1 {
		patternType = "recurring"
	}
	return models.HistoricalPattern{
		HasPattern:  true,
		Frequency:   frequency,
		IsRecurring: frequency > 1,
		PatternType: patternType,
	}
}

func compositeScore(event *models.Event, indirect *models.IndirectImpact, temporal *models.TemporalImpact) float64 {
	directScore := float64(event.Severity) / float64(models.SeverityMax)
	indirectScore := utils.Clamp(float64(len(indirect.AffectedServices))/10, 0, 1)
	temporalScore := 0.5
	if temporal.Timing.IsBusinessHours {
		temporalScore = 1.0
	}
	return directWeight*directScore + indirectWeight*indirectScore + temporalWeight*temporalScore
}
