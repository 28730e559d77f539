package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zabbixstack/zabbix-rca/internal/cache"
	"github.com/zabbixstack/zabbix-rca/internal/config"
	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

type fakeAnalyzer struct {
	analysis *models.Analysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, event *models.Event) (*models.Analysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	result := *f.analysis
	result.EventID = event.EventID
	return &result, nil
}

type fakeGateway struct {
	analyses map[string]*models.Analysis
	stats    *models.Statistics
	statsErr error
}

func (f *fakeGateway) SaveEvent(_ context.Context, event *models.Event) (string, error) {
	return event.EventID, nil
}

func (f *fakeGateway) SaveAnalysis(_ context.Context, analysis *models.Analysis) (string, error) {
	return analysis.ID, nil
}

func (f *fakeGateway) GetEvent(context.Context, string) (*models.Event, error) { return nil, nil }

func (f *fakeGateway) GetAnalysis(_ context.Context, eventID string) (*models.Analysis, error) {
	return f.analyses[eventID], nil
}

func (f *fakeGateway) FindSimilarEvents(context.Context, *models.Event, int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) GetRecentEvents(context.Context, int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) GetEventsByHost(context.Context, string, int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) GetEventsByHostAndTrigger(context.Context, string, string, time.Time, time.Time) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) GetEventsBySeverity(context.Context, int, int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) FindSimilarTriggers(context.Context, string, int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeGateway) Statistics(context.Context) (*models.Statistics, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if f.stats != nil {
		return f.stats, nil
	}
	return &models.Statistics{BySeverity: map[int]int{}}, nil
}

func (f *fakeGateway) Close() error { return nil }

type memoryCache struct {
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return value, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.entries[key] = value
	return nil
}

func (m *memoryCache) Del(_ context.Context, key string) error {
	delete(m.entries, key)
	return nil
}

func (m *memoryCache) Close() error { return nil }

func testRouter(t *testing.T, analyzer Analyzer, gateway *fakeGateway, cacheProvider cache.Provider) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := NewHandlers(analyzer, gateway, cacheProvider, time.Minute, logger)
	server := NewServer(config.ServerConfig{Address: ":0"}, handlers, logger)
	return server.Router()
}

func webhookBody(t *testing.T, event *models.Event) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(WebhookPayload{Event: event, Action: "problem.created"})
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func sampleEvent() *models.Event {
	return &models.Event{
		EventID:   "ev-1",
		Host:      "db1",
		Trigger:   "CPU>90",
		Severity:  4,
		Status:    models.StatusProblem,
		Timestamp: time.Date(2024, 3, 13, 11, 0, 0, 0, time.UTC),
	}
}

func TestWebhookSuccess(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &models.Analysis{
		ID:         "an-1",
		RCA:        "disk saturation on db1",
		Confidence: 0.8,
	}}
	router := testRouter(t, analyzer, &fakeGateway{}, newMemoryCache())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/zabbix", webhookBody(t, sampleEvent()))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status   string          `json:"status"`
		EventID  string          `json:"event_id"`
		Analysis models.Analysis `json:"analysis"`
		Cached   bool            `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "ev-1", body.EventID)
	assert.Equal(t, "disk saturation on db1", body.Analysis.RCA)
	assert.False(t, body.Cached)
	assert.Equal(t, 1, analyzer.calls)
}

func TestWebhookServesCachedAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &models.Analysis{ID: "an-1", RCA: "first run"}}
	router := testRouter(t, analyzer, &fakeGateway{}, newMemoryCache())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/zabbix", webhookBody(t, sampleEvent()))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		if i == 1 {
			assert.Equal(t, true, body["cached"])
		} else {
			assert.NotContains(t, body, "cached")
		}
	}
	assert.Equal(t, 1, analyzer.calls)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	router := testRouter(t, &fakeAnalyzer{}, &fakeGateway{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/zabbix", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request_format")
}

func TestWebhookRejectsInvalidEvent(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	router := testRouter(t, analyzer, &fakeGateway{}, nil)

	event := sampleEvent()
	event.Severity = 9
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/zabbix", webhookBody(t, event))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "severity")
	assert.Equal(t, 0, analyzer.calls)
}

func TestWebhookAnalysisFailureNamesStage(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &utils.RunError{
		Stage:   "model_request",
		EventID: "ev-1",
		Err:     errors.New("endpoint down"),
	}}
	router := testRouter(t, analyzer, &fakeGateway{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/zabbix", webhookBody(t, sampleEvent()))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "model_request", body["stage"])
	assert.Equal(t, "ev-1", body["event_id"])
}

func TestGetAnalysis(t *testing.T) {
	gateway := &fakeGateway{analyses: map[string]*models.Analysis{
		"ev-1": {ID: "an-1", EventID: "ev-1", RCA: "known cause"},
	}}
	router := testRouter(t, &fakeAnalyzer{}, gateway, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/ev-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "known cause")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	gateway := &fakeGateway{stats: &models.Statistics{
		TotalEvents:   3,
		ProblemEvents: 2,
		OKEvents:      1,
		BySeverity:    map[int]int{4: 2, 0: 1},
	}}
	router := testRouter(t, &fakeAnalyzer{}, gateway, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Statistics models.Statistics `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Statistics.TotalEvents)
	assert.Equal(t, 2, body.Statistics.ProblemEvents)
}

func TestHealthAndReady(t *testing.T) {
	gateway := &fakeGateway{}
	router := testRouter(t, &fakeAnalyzer{}, gateway, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health, "analysis_p95_ms")
	assert.Contains(t, health, "analysis_samples")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	gateway.statsErr = errors.New("store down")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
