package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Logger is the logging contract of the bus.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Bus fans session events out to synchronous subscribers in the caller's
// goroutine and to asynchronous subscribers on worker goroutines.
type Bus struct {
	direct evbus.Bus
	async  *AsyncEventBus
	logger Logger
	once   sync.Once
}

// New creates a started Bus with workers async handlers.
func New(workers int, logger Logger) *Bus {
	if logger == nil {
		logger = nopLogger{}
	}
	async := NewAsyncEventBus(workers, logger)
	async.Start()
	return &Bus{
		direct: evbus.New(),
		async:  async,
		logger: logger,
	}
}

// Publish delivers data to the synchronous subscribers of topic, then
// queues it for the asynchronous ones.
func (b *Bus) Publish(topic string, data SessionEventData) {
	b.logger.Debug("[events] publish %s", topic)
	b.direct.Publish(topic, data)
	if b.async.HasCallback(topic) {
		b.async.PublishAsync(topic, data)
	}
}

// Subscribe registers fn to run synchronously on publish.
func (b *Bus) Subscribe(topic string, fn func(SessionEventData)) error {
	return b.direct.Subscribe(topic, fn)
}

// SubscribeAsync registers fn to run on a worker.
func (b *Bus) SubscribeAsync(topic string, fn func(SessionEventData)) error {
	return b.async.Subscribe(topic, fn)
}

// Wait blocks until queued async events are handled.
func (b *Bus) Wait() {
	b.async.WaitAsync()
}

// Close drains the async queue and stops the workers.
func (b *Bus) Close() {
	b.once.Do(b.async.Stop)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
