package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zabbixstack/zabbix-rca/internal/cache"
	"github.com/zabbixstack/zabbix-rca/internal/metrics"
	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/store"
	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

// analysisCacheKey prefixes cached analyses, keyed by event id.
const analysisCacheKey = "analysis:"

// Analyzer runs the full analysis pipeline for one event.
type Analyzer interface {
	Analyze(ctx context.Context, event *models.Event) (*models.Analysis, error)
}

// WebhookPayload is the Zabbix action payload delivered to the webhook.
type WebhookPayload struct {
	Event          *models.Event          `json:"event" binding:"required"`
	Action         string                 `json:"action"`
	AdditionalData map[string]interface{} `json:"additional_data,omitempty"`
}

// Handlers exposes the HTTP surface over the analysis pipeline and store.
type Handlers struct {
	analyzer  Analyzer
	gateway   store.Gateway
	cache     cache.Provider
	cacheTTL  time.Duration
	logger    *slog.Logger
	latencies *utils.LatencyTracker
}

// NewHandlers constructs the handler set. A nil cache disables analysis
// caching via the noop provider.
func NewHandlers(analyzer Analyzer, gateway store.Gateway, cacheProvider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &Handlers{
		analyzer:  analyzer,
		gateway:   gateway,
		cache:     cacheProvider,
		cacheTTL:  cacheTTL,
		logger:    logger,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// HandleZabbixWebhook ingests one Zabbix event and returns its analysis.
// A previously completed analysis for the same event id is served from
// cache without re-running the pipeline.
func (h *Handlers) HandleZabbixWebhook(c *gin.Context) {
	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid_request_format"})
		return
	}
	if err := payload.Event.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	metrics.ObserveIngestion()
	eventID := payload.Event.EventID

	if cached := h.cachedAnalysis(c.Request.Context(), eventID); cached != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":   "success",
			"event_id": eventID,
			"analysis": cached,
			"cached":   true,
		})
		return
	}

	start := time.Now()
	analysis, err := h.analyzer.Analyze(c.Request.Context(), payload.Event)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		h.logger.Error("analysis run failed",
			slog.String("event_id", eventID),
			slog.Any("error", err))
		var runErr *utils.RunError
		if errors.As(err, &runErr) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":   "error",
				"event_id": eventID,
				"stage":    runErr.Stage,
				"error":    "analysis failed",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "event_id": eventID, "error": "analysis failed"})
		return
	}

	h.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	if count := h.latencies.Count(); count >= 20 && count%20 == 0 {
		h.logger.Info("analysis latency",
			slog.Duration("p95", h.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	h.storeCachedAnalysis(c.Request.Context(), eventID, analysis)

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"event_id": eventID,
		"analysis": analysis,
	})
}

// HandleGetAnalysis returns the stored analysis for an event id.
func (h *Handlers) HandleGetAnalysis(c *gin.Context) {
	eventID := c.Param("event_id")
	analysis, err := h.gateway.GetAnalysis(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("analysis lookup failed", slog.String("event_id", eventID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "lookup failed"})
		return
	}
	if analysis == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "analysis not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "analysis": analysis})
}

// HandleStats returns store-wide event statistics.
func (h *Handlers) HandleStats(c *gin.Context) {
	stats, err := h.gateway.Statistics(c.Request.Context())
	if err != nil {
		h.logger.Error("statistics query failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "statistics unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "statistics": stats})
}

// HandleHealth reports liveness plus the current p95 analysis latency.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"analysis_p95_ms":  h.LatencyP95().Milliseconds(),
		"analysis_samples": h.latencies.Count(),
	})
}

// HandleReady reports readiness by probing the store.
func (h *Handlers) HandleReady(c *gin.Context) {
	if _, err := h.gateway.Statistics(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unready", "error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handlers) cachedAnalysis(ctx context.Context, eventID string) *models.Analysis {
	raw, err := h.cache.Get(ctx, analysisCacheKey+eventID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("cache read failed", slog.String("event_id", eventID), slog.Any("error", err))
		}
		return nil
	}
	var analysis models.Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		h.logger.Warn("cached analysis unreadable, dropping", slog.String("event_id", eventID))
		_ = h.cache.Del(ctx, analysisCacheKey+eventID)
		return nil
	}
	return &analysis
}

func (h *Handlers) storeCachedAnalysis(ctx context.Context, eventID string, analysis *models.Analysis) {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, analysisCacheKey+eventID, raw, h.cacheTTL); err != nil {
		h.logger.Warn("cache write failed", slog.String("event_id", eventID), slog.Any("error", err))
	}
}

// LatencyP95 returns the current p95 analysis latency.
func (h *Handlers) LatencyP95() time.Duration {
	return h.latencies.Percentile(95)
}
