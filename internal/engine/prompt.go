package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/ranker"
)

// buildPrompt assembles the structured payload sent to the language model:
// the current event, the formatted historical context and one summary block
// per analyzer report.
func buildPrompt(
	event *models.Event,
	contextItems []models.ContextItem,
	patternReport *models.PatternReport,
	trendReport *models.TrendReport,
	impactReport *models.ImpactReport,
) string {
	var b strings.Builder

	b.WriteString("You are a root cause analysis expert for infrastructure monitoring alerts.\n\n")
	b.WriteString("Current event:\n")
	fmt.Fprintf(&b, "Host: %s\n", event.Host)
	fmt.Fprintf(&b, "Item: %s\n", event.Item)
	fmt.Fprintf(&b, "Trigger: %s\n", event.Trigger)
	fmt.Fprintf(&b, "Severity: %d\n", event.Severity)
	fmt.Fprintf(&b, "Status: %s\n", event.Status)
	fmt.Fprintf(&b, "Timestamp: %s\n", event.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Value: %s\n", event.Value)
	if event.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", event.Description)
	}

	b.WriteString("\nHistorical context:\n")
	b.WriteString(ranker.FormatContext(contextItems))

	b.WriteString("\nPattern analysis:\n")
	writePatternSummary(&b, patternReport)

	b.WriteString("\nTrend analysis:\n")
	writeTrendSummary(&b, trendReport)

	b.WriteString("\nImpact analysis:\n")
	writeImpactSummary(&b, impactReport)

	b.WriteString("\nBased on the event, historical context and analysis reports above, ")
	b.WriteString("determine the most likely root cause.\n")
	b.WriteString("Respond with a single JSON object containing exactly these fields:\n")
	b.WriteString(`{"rca": "<root cause explanation>", "confidence": <0.0-1.0>, "recommendations": ["<action>", ...]}` + "\n")

	return b.String()
}

func writePatternSummary(b *strings.Builder, report *models.PatternReport) {
	if report == nil {
		b.WriteString("- not available\n")
		return
	}
	if len(report.RecurringIssues) == 0 {
		b.WriteString("- no recurring issues in context\n")
	}
	for _, issue := range report.RecurringIssues {
		fmt.Fprintf(b, "- recurring issue %q seen %d times\n", issue.Pattern, issue.Count)
	}
	fmt.Fprintf(b, "- system stability: %.2f\n", report.Stability)
	if report.RecoveryTime != nil {
		fmt.Fprintf(b, "- typical recovery time: %.1f minutes\n", report.RecoveryTime.Minutes())
	}
	fmt.Fprintf(b, "- dependency candidates: %d upstream, %d downstream\n",
		len(report.UpstreamEvents), len(report.DownstreamEvents))
}

func writeTrendSummary(b *strings.Builder, report *models.TrendReport) {
	if report == nil || !report.HasTrend {
		b.WriteString("- no trend data for this window\n")
		return
	}
	fmt.Fprintf(b, "- %d events in the last %d hours\n", report.TotalEvents, report.WindowHours)
	if report.Frequency != nil {
		fmt.Fprintf(b, "- frequency: %.2f events/hour on average, trend %s\n",
			report.Frequency.AveragePerHour, report.Frequency.Trend)
	}
	if report.Severity != nil {
		fmt.Fprintf(b, "- severity: mean %.2f, max %d, trend %s\n",
			report.Severity.Average, report.Severity.Max, report.Severity.Trend)
	}
	if report.Recovery != nil {
		fmt.Fprintf(b, "- recovery: %.1f minutes on average over %d samples\n",
			report.Recovery.AverageMinutes, len(report.Recovery.Samples))
	}
}

func writeImpactSummary(b *strings.Builder, report *models.ImpactReport) {
	if report == nil {
		b.WriteString("- not available\n")
		return
	}
	fmt.Fprintf(b, "- impact type: %s, composite score %.2f\n", report.Direct.ImpactType, report.Score)
	fmt.Fprintf(b, "- affected services: %s\n", joinOrNone(report.Indirect.AffectedServices))
	if report.Indirect.Business.BusinessCritical {
		b.WriteString("- business critical service affected\n")
	}
	if report.Indirect.Cascade.HasCascade {
		fmt.Fprintf(b, "- cascade of %d later events, max delay %.1f minutes\n",
			len(report.Indirect.Cascade.Chain), report.Indirect.Cascade.MaxDelayMinutes)
	}
	if report.Temporal.Recovery.Confidence > 0 {
		fmt.Fprintf(b, "- estimated recovery: %.1f minutes (confidence %.2f)\n",
			report.Temporal.Recovery.EstimatedMinutes, report.Temporal.Recovery.Confidence)
	}
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
