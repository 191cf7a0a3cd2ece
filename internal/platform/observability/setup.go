package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc flushes the counters to the log and detaches the logger.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup installs the logger that spans and metrics are written to. Nothing
// is recorded while cfg.Enabled is false.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()
	resetCounters()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[observability] enabled")
		} else {
			logger.InfoContext(ctx, "[observability] disabled")
		}
	}

	return func(ctx context.Context) error {
		log, state := currentLogger()
		if log != nil && state.Enabled {
			attrs := make([]any, 0, 2*len(Snapshot()))
			for name, value := range Snapshot() {
				attrs = append(attrs, slog.Float64(name, value))
			}
			log.InfoContext(ctx, "[observability] counters", attrs...)
		}
		loggerMu.Lock()
		instrumentationLog = nil
		instrumentationState = Config{}
		loggerMu.Unlock()
		return nil
	}, nil
}
