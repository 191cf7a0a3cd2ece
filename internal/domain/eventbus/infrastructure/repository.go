package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"chemviz-client-go/internal/domain/eventbus/repository"
	"chemviz-client-go/internal/platform/storage"
)

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository returns a repository backed by the session_events
// table.
func NewEventRepository(db *gorm.DB) repository.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Store(ctx context.Context, event *repository.Event) error {
	payload, err := sonic.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := storage.SessionEvent{
		Topic:     event.Topic,
		Namespace: event.Namespace,
		Payload:   payload,
		CreatedAt: createdAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	event.ID = row.ID
	event.CreatedAt = row.CreatedAt
	return nil
}

func (r *eventRepository) Recent(ctx context.Context, limit int) ([]*repository.Event, error) {
	var rows []storage.SessionEvent
	if err := r.newest(ctx, limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return convertEvents(rows)
}

func (r *eventRepository) FindByTopic(ctx context.Context, topic string, limit int) ([]*repository.Event, error) {
	var rows []storage.SessionEvent
	if err := r.newest(ctx, limit).Where("topic = ?", topic).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query events by topic: %w", err)
	}
	return convertEvents(rows)
}

func (r *eventRepository) FindByTimeRange(ctx context.Context, start, end time.Time) ([]*repository.Event, error) {
	var rows []storage.SessionEvent
	err := r.db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", start, end).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query events by time range: %w", err)
	}
	return convertEvents(rows)
}

func (r *eventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&storage.SessionEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *eventRepository) Stats(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Topic string
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&storage.SessionEvent{}).
		Select("topic, COUNT(*) AS count").
		Group("topic").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("event stats: %w", err)
	}

	stats := make(map[string]int64, len(rows)+1)
	var total int64
	for _, row := range rows {
		stats[row.Topic] = row.Count
		total += row.Count
	}
	stats["total"] = total
	return stats, nil
}

func (r *eventRepository) newest(ctx context.Context, limit int) *gorm.DB {
	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return query
}

func convertEvents(rows []storage.SessionEvent) ([]*repository.Event, error) {
	events := make([]*repository.Event, 0, len(rows))
	for _, row := range rows {
		var data map[string]interface{}
		if len(row.Payload) > 0 {
			if err := sonic.Unmarshal(row.Payload, &data); err != nil {
				return nil, fmt.Errorf("decode event %d: %w", row.ID, err)
			}
		}
		events = append(events, &repository.Event{
			ID:        row.ID,
			Topic:     row.Topic,
			Namespace: row.Namespace,
			Data:      data,
			CreatedAt: row.CreatedAt,
		})
	}
	return events, nil
}
