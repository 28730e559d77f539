// Package engine sequences a full analysis run: persist the event, rank
// historical context, fan out the three analyzers, consult the language
// model and persist the combined analysis.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zabbixstack/zabbix-rca/internal/llm"
	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/store"
	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

// Stage names reported in RunError when a run aborts.
const (
	StagePersistEvent     = "persist_event"
	StageContextRetrieval = "context_retrieval"
	StagePatternAnalysis  = "pattern_analysis"
	StageTrendAnalysis    = "trend_analysis"
	StageImpactAnalysis   = "impact_analysis"
	StageModelRequest     = "model_request"
	StagePersistAnalysis  = "persist_analysis"
)

// ContextRanker retrieves scored historical context for an event.
type ContextRanker interface {
	GetRelevantContext(ctx context.Context, event *models.Event, maxResults int) ([]models.ContextItem, error)
}

// PatternAnalyzer detects recurring issues and host stability.
type PatternAnalyzer interface {
	AnalyzePatterns(ctx context.Context, event *models.Event, contextItems []models.ContextItem) (*models.PatternReport, error)
}

// TrendAnalyzer computes sliding-window trends for a host+trigger.
type TrendAnalyzer interface {
	AnalyzeTrends(ctx context.Context, host, trigger string, windowHours int) (*models.TrendReport, error)
}

// ImpactAnalyzer assesses direct/indirect/temporal impact of an event.
type ImpactAnalyzer interface {
	AnalyzeImpact(ctx context.Context, event *models.Event) (*models.ImpactReport, error)
}

// Options bound one analysis run.
type Options struct {
	MaxContextResults int
	TrendWindowHours  int
	RunTimeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxContextResults <= 0 {
		o.MaxContextResults = 5
	}
	if o.TrendWindowHours <= 0 {
		o.TrendWindowHours = 24
	}
	return o
}

// Orchestrator drives one analysis run per event. Runs are independent;
// all shared state lives in the store.
type Orchestrator struct {
	gateway  store.Gateway
	ranker   ContextRanker
	patterns PatternAnalyzer
	trends   TrendAnalyzer
	impact   ImpactAnalyzer
	model    llm.Client
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// NewOrchestrator wires the pipeline's collaborators together.
func NewOrchestrator(
	gateway store.Gateway,
	ranker ContextRanker,
	patterns PatternAnalyzer,
	trends TrendAnalyzer,
	impact ImpactAnalyzer,
	model llm.Client,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gateway:  gateway,
		ranker:   ranker,
		patterns: patterns,
		trends:   trends,
		impact:   impact,
		model:    model,
		logger:   logger,
		opts:     opts.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Analyze runs the full pipeline for one event and returns the persisted
// analysis. Store and context failures abort the run with a RunError naming
// the failed stage; a failed or malformed model response degrades the
// analysis instead of aborting.
func (o *Orchestrator) Analyze(ctx context.Context, event *models.Event) (*models.Analysis, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	started := o.now()
	logger := o.logger.With(slog.String("event_id", event.EventID))
	logger.Info("analysis run started",
		slog.String("host", event.Host),
		slog.String("trigger", event.Trigger),
		slog.Int("severity", event.Severity))

	if _, err := o.gateway.SaveEvent(ctx, event); err != nil {
		return nil, o.failed(StagePersistEvent, event, err)
	}

	contextItems, err := o.ranker.GetRelevantContext(ctx, event, o.opts.MaxContextResults)
	if err != nil {
		return nil, o.failed(StageContextRetrieval, event, err)
	}

	// Fan out the three analyzers. They share no state and read the store
	// independently; the first failure cancels the siblings.
	var (
		patternReport *models.PatternReport
		trendReport   *models.TrendReport
		impactReport  *models.ImpactReport
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		report, err := o.patterns.AnalyzePatterns(groupCtx, event, contextItems)
		if err != nil {
			return o.failed(StagePatternAnalysis, event, err)
		}
		patternReport = report
		return nil
	})
	group.Go(func() error {
		report, err := o.trends.AnalyzeTrends(groupCtx, event.Host, event.Trigger, o.opts.TrendWindowHours)
		if err != nil {
			return o.failed(StageTrendAnalysis, event, err)
		}
		trendReport = report
		return nil
	})
	group.Go(func() error {
		report, err := o.impact.AnalyzeImpact(groupCtx, event)
		if err != nil {
			return o.failed(StageImpactAnalysis, event, err)
		}
		impactReport = report
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	prompt := buildPrompt(event, contextItems, patternReport, trendReport, impactReport)
	result, err := o.consultModel(ctx, event, prompt)
	if err != nil {
		return nil, err
	}

	analysis := o.buildAnalysis(event, contextItems, result, trendReport, impactReport)
	if _, err := o.gateway.SaveAnalysis(ctx, analysis); err != nil {
		return nil, o.failed(StagePersistAnalysis, event, err)
	}

	logger.Info("analysis run complete",
		slog.Float64("confidence", analysis.Confidence),
		slog.Bool("degraded", result.Degraded),
		slog.Duration("elapsed", o.now().Sub(started)))

	return analysis, nil
}

// consultModel invokes the language model. A ModelError degrades the run to
// a fallback result; cancellation and deadline expiry stay fatal.
func (o *Orchestrator) consultModel(ctx context.Context, event *models.Event, prompt string) (*llm.Result, error) {
	result, err := o.model.Analyze(ctx, prompt)
	if err == nil {
		return result, nil
	}

	if ctx.Err() != nil {
		return nil, o.failed(StageModelRequest, event, ctx.Err())
	}

	var modelErr *utils.ModelError
	if errors.As(err, &modelErr) {
		o.logger.Warn("model request failed, degrading analysis",
			slog.String("event_id", event.EventID),
			slog.Any("error", err))
		return &llm.Result{
			RCA:             "analysis unavailable: " + modelErr.Error(),
			Confidence:      0.5,
			Recommendations: []string{},
			Degraded:        true,
		}, nil
	}

	return nil, o.failed(StageModelRequest, event, err)
}

func (o *Orchestrator) buildAnalysis(
	event *models.Event,
	contextItems []models.ContextItem,
	result *llm.Result,
	trendReport *models.TrendReport,
	impactReport *models.ImpactReport,
) *models.Analysis {
	similarEvents := []string{}
	relevanceScores := make([]float64, 0, len(contextItems))
	for _, item := range contextItems {
		relevanceScores = append(relevanceScores, item.Relevance)
		if item.Kind == models.ContextKindEvent {
			similarEvents = append(similarEvents, item.EventID())
		}
	}

	metadata := map[string]interface{}{
		"context_used":             len(contextItems),
		"context_relevance_scores": relevanceScores,
	}
	if result.Degraded {
		metadata["degraded_model_response"] = true
	}

	return &models.Analysis{
		ID:              uuid.NewString(),
		EventID:         event.EventID,
		RCA:             result.RCA,
		Confidence:      result.Confidence,
		Recommendations: result.Recommendations,
		SimilarEvents:   similarEvents,
		Trend:           trendReport,
		Impact:          impactReport,
		Metadata:        metadata,
		ResolutionTime:  impactReport.Temporal.Recovery.EstimatedMinutes,
		CreatedAt:       o.now(),
	}
}

func (o *Orchestrator) failed(stage string, event *models.Event, err error) error {
	return &utils.RunError{Stage: stage, EventID: event.EventID, Err: err}
}
