package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO required

	"github.com/zabbixstack/zabbix-rca/internal/models"
	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    event_id    TEXT PRIMARY KEY,
    host        TEXT NOT NULL,
    item        TEXT NOT NULL DEFAULT '',
    trigger_name TEXT NOT NULL,
    severity    INTEGER NOT NULL,
    status      TEXT NOT NULL,
    timestamp   INTEGER NOT NULL,
    value       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    tags        TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_host ON events(host, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_host_trigger ON events(host, trigger_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_severity ON events(severity, timestamp DESC);

CREATE TABLE IF NOT EXISTS analyses (
    id              TEXT NOT NULL,
    event_id        TEXT PRIMARY KEY,
    rca             TEXT NOT NULL DEFAULT '',
    confidence      REAL NOT NULL DEFAULT 0,
    recommendations TEXT NOT NULL DEFAULT '[]',
    similar_events  TEXT NOT NULL DEFAULT '[]',
    trend           TEXT,
    impact          TEXT,
    metadata        TEXT NOT NULL DEFAULT '{}',
    resolution_time REAL NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);
`

// SQLiteGateway implements Gateway over a local SQLite database. Timestamps
// are stored as UTC unix nanoseconds so newest-first ordering is a plain
// integer sort.
type SQLiteGateway struct {
	db           *sqlx.DB
	queryTimeout time.Duration
}

// NewSQLiteGateway opens (creating if needed) the database at path and
// applies the schema. queryTimeout bounds queries whose caller supplies no
// deadline of its own; zero disables the bound.
func NewSQLiteGateway(path string, queryTimeout time.Duration) (*SQLiteGateway, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, utils.NewStoreError("open", err)
	}
	// The modernc driver serialises writes; a single connection avoids
	// SQLITE_BUSY under concurrent analysis runs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, utils.NewStoreError("migrate", err)
	}
	return &SQLiteGateway{db: db, queryTimeout: queryTimeout}, nil
}

func (g *SQLiteGateway) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.queryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.queryTimeout)
}

// Close releases the underlying database handle.
func (g *SQLiteGateway) Close() error {
	return g.db.Close()
}

type eventRow struct {
	EventID     string `db:"event_id"`
	Host        string `db:"host"`
	Item        string `db:"item"`
	Trigger     string `db:"trigger_name"`
	Severity    int    `db:"severity"`
	Status      string `db:"status"`
	Timestamp   int64  `db:"timestamp"`
	Value       string `db:"value"`
	Description string `db:"description"`
	Tags        string `db:"tags"`
}

func (r eventRow) toModel() (models.Event, error) {
	var tags []models.Tag
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			return models.Event{}, fmt.Errorf("decode tags for %s: %w", r.EventID, err)
		}
	}
	return models.Event{
		EventID:     r.EventID,
		Host:        r.Host,
		Item:        r.Item,
		Trigger:     r.Trigger,
		Severity:    r.Severity,
		Status:      models.Status(r.Status),
		Timestamp:   time.Unix(0, r.Timestamp).UTC(),
		Value:       r.Value,
		Description: r.Description,
		Tags:        tags,
	}, nil
}

// SaveEvent persists an immutable event record. Saving an already stored
// event id is a no-op, so a full pipeline re-run for the same event (or a
// duplicate webhook delivery) never fails here.
func (g *SQLiteGateway) SaveEvent(ctx context.Context, event *models.Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}
	tags, err := json.Marshal(tagsOrEmpty(event.Tags))
	if err != nil {
		return "", utils.NewStoreError("save event", err)
	}
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO events (event_id, host, item, trigger_name, severity, status, timestamp, value, description, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		event.EventID,
		event.Host,
		event.Item,
		event.Trigger,
		event.Severity,
		string(event.Status),
		event.Timestamp.UTC().UnixNano(),
		event.Value,
		event.Description,
		string(tags),
	)
	if err != nil {
		return "", utils.NewStoreError("save event", err)
	}
	return event.EventID, nil
}

// SaveAnalysis upserts the analysis for its event id; a newer analysis
// supersedes any prior one for the same event.
func (g *SQLiteGateway) SaveAnalysis(ctx context.Context, analysis *models.Analysis) (string, error) {
	if analysis.EventID == "" {
		return "", utils.NewStoreError("save analysis", errors.New("analysis missing event_id"))
	}
	if analysis.ID == "" {
		analysis.ID = uuid.New().String()
	}
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now().UTC()
	}

	recs, err := json.Marshal(stringsOrEmpty(analysis.Recommendations))
	if err != nil {
		return "", utils.NewStoreError("save analysis", err)
	}
	similar, err := json.Marshal(stringsOrEmpty(analysis.SimilarEvents))
	if err != nil {
		return "", utils.NewStoreError("save analysis", err)
	}
	meta, err := json.Marshal(analysis.Metadata)
	if err != nil {
		return "", utils.NewStoreError("save analysis", err)
	}
	trend, err := marshalNullable(analysis.Trend)
	if err != nil {
		return "", utils.NewStoreError("save analysis", err)
	}
	impact, err := marshalNullable(analysis.Impact)
	if err != nil {
		return "", utils.NewStoreError("save analysis", err)
	}

	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO analyses (id, event_id, rca, confidence, recommendations, similar_events, trend, impact, metadata, resolution_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			id = excluded.id,
			rca = excluded.rca,
			confidence = excluded.confidence,
			recommendations = excluded.recommendations,
			similar_events = excluded.similar_events,
			trend = excluded.trend,
			impact = excluded.impact,
			metadata = excluded.metadata,
			resolution_time = excluded.resolution_time,
			created_at = excluded.created_at`,
		analysis.ID,
		analysis.EventID,
		analysis.RCA,
		analysis.Confidence,
		string(recs),
		string(similar),
		trend,
		impact,
		string(meta),
		analysis.ResolutionTime,
		analysis.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return "", utils.NewStoreError("save analysis", err)
	}
	return analysis.ID, nil
}

// GetEvent fetches a single event by id, nil when absent.
func (g *SQLiteGateway) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	var row eventRow
	err := g.db.GetContext(ctx, &row, `SELECT * FROM events WHERE event_id = ?`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewStoreError("get event", err)
	}
	event, err := row.toModel()
	if err != nil {
		return nil, utils.NewStoreError("get event", err)
	}
	return &event, nil
}

type analysisRow struct {
	ID              string         `db:"id"`
	EventID         string         `db:"event_id"`
	RCA             string         `db:"rca"`
	Confidence      float64        `db:"confidence"`
	Recommendations string         `db:"recommendations"`
	SimilarEvents   string         `db:"similar_events"`
	Trend           sql.NullString `db:"trend"`
	Impact          sql.NullString `db:"impact"`
	Metadata        string         `db:"metadata"`
	ResolutionTime  float64        `db:"resolution_time"`
	CreatedAt       int64          `db:"created_at"`
}

func (r analysisRow) toModel() (*models.Analysis, error) {
	analysis := &models.Analysis{
		ID:             r.ID,
		EventID:        r.EventID,
		RCA:            r.RCA,
		Confidence:     r.Confidence,
		ResolutionTime: r.ResolutionTime,
		CreatedAt:      time.Unix(0, r.CreatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(r.Recommendations), &analysis.Recommendations); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	if err := json.Unmarshal([]byte(r.SimilarEvents), &analysis.SimilarEvents); err != nil {
		return nil, fmt.Errorf("decode similar_events: %w", err)
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &analysis.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if r.Trend.Valid && r.Trend.String != "" {
		analysis.Trend = &models.TrendReport{}
		if err := json.Unmarshal([]byte(r.Trend.String), analysis.Trend); err != nil {
			return nil, fmt.Errorf("decode trend: %w", err)
		}
	}
	if r.Impact.Valid && r.Impact.String != "" {
		analysis.Impact = &models.ImpactReport{}
		if err := json.Unmarshal([]byte(r.Impact.String), analysis.Impact); err != nil {
			return nil, fmt.Errorf("decode impact: %w", err)
		}
	}
	return analysis, nil
}

// GetAnalysis fetches the analysis for an event id, nil when absent.
func (g *SQLiteGateway) GetAnalysis(ctx context.Context, eventID string) (*models.Analysis, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	var row analysisRow
	err := g.db.GetContext(ctx, &row, `SELECT * FROM analyses WHERE event_id = ?`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewStoreError("get analysis", err)
	}
	analysis, err := row.toModel()
	if err != nil {
		return nil, utils.NewStoreError("get analysis", err)
	}
	return analysis, nil
}

// FindSimilarEvents returns events sharing host and trigger, newest first,
// excluding the event itself.
func (g *SQLiteGateway) FindSimilarEvents(ctx context.Context, event *models.Event, limit int) ([]models.Event, error) {
	return g.selectEvents(ctx, "find similar events", `
		SELECT * FROM events
		WHERE host = ? AND trigger_name = ? AND event_id != ?
		ORDER BY timestamp DESC LIMIT ?`,
		event.Host, event.Trigger, event.EventID, limit)
}

// GetRecentEvents returns the newest events across all hosts.
func (g *SQLiteGateway) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	return g.selectEvents(ctx, "get recent events", `
		SELECT * FROM events ORDER BY timestamp DESC LIMIT ?`, limit)
}

// GetEventsByHost returns the newest events for one host.
func (g *SQLiteGateway) GetEventsByHost(ctx context.Context, host string, limit int) ([]models.Event, error) {
	return g.selectEvents(ctx, "get events by host", `
		SELECT * FROM events WHERE host = ? ORDER BY timestamp DESC LIMIT ?`, host, limit)
}

// GetEventsByHostAndTrigger returns events for a host+trigger inside
// [start, end], newest first.
func (g *SQLiteGateway) GetEventsByHostAndTrigger(ctx context.Context, host, trigger string, start, end time.Time) ([]models.Event, error) {
	return g.selectEvents(ctx, "get events by host and trigger", `
		SELECT * FROM events
		WHERE host = ? AND trigger_name = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp DESC`,
		host, trigger, start.UTC().UnixNano(), end.UTC().UnixNano())
}

// GetEventsBySeverity returns the newest events carrying one severity value.
func (g *SQLiteGateway) GetEventsBySeverity(ctx context.Context, severity, limit int) ([]models.Event, error) {
	return g.selectEvents(ctx, "get events by severity", `
		SELECT * FROM events WHERE severity = ? ORDER BY timestamp DESC LIMIT ?`, severity, limit)
}

// FindSimilarTriggers returns events whose trigger contains the pattern as a
// case-insensitive substring. Pattern text is matched literally; LIKE
// metacharacters in triggers such as "CPU > 90%" carry no wildcard meaning.
func (g *SQLiteGateway) FindSimilarTriggers(ctx context.Context, pattern string, limit int) ([]models.Event, error) {
	return g.selectEvents(ctx, "find similar triggers", `
		SELECT * FROM events
		WHERE trigger_name LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY timestamp DESC LIMIT ?`, escapeLike(pattern), limit)
}

// Statistics aggregates store-wide event counts.
func (g *SQLiteGateway) Statistics(ctx context.Context) (*models.Statistics, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	stats := &models.Statistics{BySeverity: make(map[int]int)}
	if err := g.db.GetContext(ctx, &stats.TotalEvents, `SELECT COUNT(*) FROM events`); err != nil {
		return nil, utils.NewStoreError("statistics", err)
	}
	if err := g.db.GetContext(ctx, &stats.ProblemEvents, `SELECT COUNT(*) FROM events WHERE status = ?`, string(models.StatusProblem)); err != nil {
		return nil, utils.NewStoreError("statistics", err)
	}
	if err := g.db.GetContext(ctx, &stats.OKEvents, `SELECT COUNT(*) FROM events WHERE status = ?`, string(models.StatusOK)); err != nil {
		return nil, utils.NewStoreError("statistics", err)
	}

	rows, err := g.db.QueryxContext(ctx, `SELECT severity, COUNT(*) FROM events GROUP BY severity`)
	if err != nil {
		return nil, utils.NewStoreError("statistics", err)
	}
	defer rows.Close()
	for rows.Next() {
		var severity, count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, utils.NewStoreError("statistics", err)
		}
		stats.BySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewStoreError("statistics", err)
	}
	return stats, nil
}

func (g *SQLiteGateway) selectEvents(ctx context.Context, op, query string, args ...interface{}) ([]models.Event, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	var rows []eventRow
	if err := g.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, utils.NewStoreError(op, err)
	}
	events := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		event, err := row.toModel()
		if err != nil {
			return nil, utils.NewStoreError(op, err)
		}
		events = append(events, event)
	}
	return events, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(pattern string) string {
	return likeEscaper.Replace(pattern)
}

func tagsOrEmpty(tags []models.Tag) []models.Tag {
	if tags == nil {
		return []models.Tag{}
	}
	return tags
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func marshalNullable(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case *models.TrendReport:
		if x == nil {
			return nil, nil
		}
	case *models.ImpactReport:
		if x == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
