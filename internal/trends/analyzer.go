// Package trends computes sliding-window frequency, severity and recovery
// trends for one host+trigger.
package trends

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/store"
	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

// Analyzer computes TrendReports over a sliding time window.
type Analyzer struct {
	gateway store.Gateway
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyzer constructs a trend Analyzer.
func NewAnalyzer(gateway store.Gateway, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gateway: gateway, logger: logger, now: time.Now}
}

// AnalyzeTrends examines host+trigger events within the last windowHours
// hours. An empty window returns the NoTrend sentinel, never an error.
func (a *Analyzer) AnalyzeTrends(ctx context.Context, host, trigger string, windowHours int) (*models.TrendReport, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	end := a.now().UTC()
	start := end.Add(-time.Duration(windowHours) * time.Hour)

	events, err := a.gateway.GetEventsByHostAndTrigger(ctx, host, trigger, start, end)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return models.NoTrend(), nil
	}

	ordered := append([]models.Event(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	report := &models.TrendReport{
		HasTrend:    true,
		WindowHours: windowHours,
		TotalEvents: len(ordered),
		Frequency:   analyzeFrequency(ordered),
		Severity:    analyzeSeverity(ordered),
		Recovery:    analyzeRecovery(ordered),
	}

	a.logger.Debug("trend analysis complete",
		slog.String("host", host),
		slog.String("trigger", trigger),
		slog.Int("events", len(ordered)),
		slog.String("frequency_trend", report.Frequency.Trend))

	return report, nil
}

// analyzeFrequency buckets events into 1-hour bins spanning the first to the
// last event hour; bins with no events count zero.
func analyzeFrequency(ordered []models.Event) *models.FrequencyTrend {
	first := utils.FloorToHour(ordered[0].Timestamp)
	last := utils.FloorToHour(ordered[len(ordered)-1].Timestamp)

	bins := int(last.Sub(first)/time.Hour) + 1
	counts := make([]float64, bins)
	for _, event := range ordered {
		idx := int(utils.FloorToHour(event.Timestamp).Sub(first) / time.Hour)
		counts[idx]++
	}

	maxCount, minCount := counts[0], counts[0]
	total := 0.0
	for _, c := range counts {
		total += c
		if c > maxCount {
			maxCount = c
		}
		if c < minCount {
			minCount = c
		}
	}

	return &models.FrequencyTrend{
		TotalEvents:    len(ordered),
		AveragePerHour: total / float64(bins),
		MaxPerHour:     int(maxCount),
		MinPerHour:     int(minCount),
		Trend:          direction(counts),
	}
}

func analyzeSeverity(ordered []models.Event) *models.SeverityTrend {
	series := make([]float64, len(ordered))
	sum := 0.0
	max := ordered[0].Severity
	for i, event := range ordered {
		series[i] = float64(event.Severity)
		sum += series[i]
		if event.Severity > max {
			max = event.Severity
		}
	}
	return &models.SeverityTrend{
		Average: sum / float64(len(ordered)),
		Max:     max,
		Trend:   direction(series),
	}
}

// analyzeRecovery pairs every PROBLEM with the first strictly-later OK in
// the same ordered series. Unlike the pattern analyzer's adjacent-only
// pairing, one OK may resolve several preceding PROBLEMs.
func analyzeRecovery(ordered []models.Event) *models.RecoveryTrend {
	var gaps []float64
	for _, problem := range ordered {
		if problem.Status != models.StatusProblem {
			continue
		}
		for _, candidate := range ordered {
			if candidate.Status != models.StatusOK {
				continue
			}
			if candidate.Timestamp.After(problem.Timestamp) {
				gaps = append(gaps, utils.DurationMinutes(problem.Timestamp, candidate.Timestamp))
				break
			}
		}
	}
	if len(gaps) == 0 {
		return nil
	}

	min, max := gaps[0], gaps[0]
	sum := 0.0
	for _, gap := range gaps {
		sum += gap
		if gap < min {
			min = gap
		}
		if gap > max {
			max = gap
		}
	}
	return &models.RecoveryTrend{
		AverageMinutes: sum / float64(len(gaps)),
		MinMinutes:     min,
		MaxMinutes:     max,
		Samples:        gaps,
	}
}

// direction labels a series by the mean of its first differences. A flat or
// single-sample series is "decreasing": zero is not greater than zero, and
// downstream output depends on that exact tie-break.
func direction(series []float64) string {
	if len(series) < 2 {
		return models.TrendDecreasing
	}
	sum := 0.0
	for i := 1; i < len(series); i++ {
		sum += series[i] - series[i-1]
	}
	if sum/float64(len(series)-1) > 0 {
		return models.TrendIncreasing
	}
	return models.TrendDecreasing
}
