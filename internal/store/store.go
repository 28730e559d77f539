package store

import (
	"context"
	"time"

	"github.com/zabbixstack/zabbix-rca/internal/models"
)

// Gateway is the read/write contract over the historical event and analysis
// log. All event queries return results ordered newest-first by timestamp
// unless stated otherwise, and every call honours the caller's context
// deadline. Lookups for a missing record return (nil, nil), not an error.
type Gateway interface {
	SaveEvent(ctx context.Context, event *models.Event) (string, error)
	SaveAnalysis(ctx context.Context, analysis *models.Analysis) (string, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	GetAnalysis(ctx context.Context, eventID string) (*models.Analysis, error)
	// FindSimilarEvents returns events sharing host and trigger with the
	// given event, excluding the event itself.
	FindSimilarEvents(ctx context.Context, event *models.Event, limit int) ([]models.Event, error)
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
	GetEventsByHost(ctx context.Context, host string, limit int) ([]models.Event, error)
	GetEventsByHostAndTrigger(ctx context.Context, host, trigger string, start, end time.Time) ([]models.Event, error)
	GetEventsBySeverity(ctx context.Context, severity, limit int) ([]models.Event, error)
	// FindSimilarTriggers returns events whose trigger contains the pattern
	// as a case-insensitive substring.
	FindSimilarTriggers(ctx context.Context, pattern string, limit int) ([]models.Event, error)
	Statistics(ctx context.Context) (*models.Statistics, error)
	Close() error
}
