package eventbus

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"

	"chemviz-client-go/internal/domain/eventbus/repository"
)

// Recorder persists every session event published on a Bus.
type Recorder struct {
	repo    repository.EventRepository
	logger  Logger
	timeout time.Duration
}

func NewRecorder(repo repository.EventRepository, logger Logger) *Recorder {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Recorder{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the recorder to every session topic. Events are stored
// on the bus workers.
func (r *Recorder) Attach(bus *Bus) error {
	for _, topic := range SessionTopics {
		topic := topic
		if err := bus.SubscribeAsync(topic, func(data SessionEventData) {
			r.record(topic, data)
		}); err != nil {
			return fmt.Errorf("subscribe recorder to %s: %w", topic, err)
		}
	}
	return nil
}

func (r *Recorder) record(topic string, data SessionEventData) {
	fields, err := toMap(data)
	if err != nil {
		r.logger.Error("[events] encode %s: %v", topic, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	event := &repository.Event{
		Topic:     topic,
		Namespace: data.Namespace,
		Data:      fields,
		CreatedAt: data.At,
	}
	if err := r.repo.Store(ctx, event); err != nil {
		r.logger.Error("[events] store %s: %v", topic, err)
		return
	}
	r.logger.Debug("[events] stored %s as #%d", topic, event.ID)
}

func toMap(data SessionEventData) (map[string]interface{}, error) {
	raw, err := sonic.Marshal(data)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := sonic.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// NotifyExpired prints a re-login hint to w whenever the session expires.
func NotifyExpired(bus *Bus, w io.Writer) error {
	return bus.Subscribe(EventSessionExpired, func(data SessionEventData) {
		route := data.LoginRoute
		if route == "" {
			route = "/login"
		}
		fmt.Fprintf(w, "session expired: please log in again (%s)\n", route)
	})
}

// LogEvents writes one log line per session event.
func LogEvents(bus *Bus, logger Logger) error {
	for _, topic := range SessionTopics {
		topic := topic
		if err := bus.Subscribe(topic, func(data SessionEventData) {
			logger.Info("[events] %s namespace=%s %s", topic, data.Namespace, data.Reason)
		}); err != nil {
			return err
		}
	}
	return nil
}
