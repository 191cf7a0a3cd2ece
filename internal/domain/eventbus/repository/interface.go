package repository

import (
	"context"
	"time"
)

// Event is a persisted session event.
type Event struct {
	ID        uint                   `json:"id"`
	Topic     string                 `json:"topic"`
	Namespace string                 `json:"namespace"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
}

// EventRepository persists session events for later inspection.
type EventRepository interface {
	Store(ctx context.Context, event *Event) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]*Event, error)
	FindByTopic(ctx context.Context, topic string, limit int) ([]*Event, error)
	FindByTimeRange(ctx context.Context, start, end time.Time) ([]*Event, error)

	// DeleteOlderThan removes events created before cutoff and returns how
	// many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (map[string]int64, error)
}
