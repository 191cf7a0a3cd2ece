package testing

import (
	"bytes"
	"testing"
	"time"

	"chemviz-client-go/internal/platform/config"
	"chemviz-client-go/internal/platform/logging"
)

// SetupTestConfig returns a configuration pointing at baseURL with an
// in-memory session store and no log directory.
func SetupTestConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Session.Driver = "memory"
	cfg.Session.File.Path = t.TempDir() + "/session.json"
	cfg.Session.SQLite.DSN = ""
	cfg.Log.Level = "debug"
	cfg.Log.Dir = ""
	cfg.Report.OutputDir = t.TempDir()
	return cfg
}

// SetupTestLogger returns a debug logger whose console output is captured
// in the returned buffer.
func SetupTestLogger(t *testing.T) (*logging.Logger, *bytes.Buffer) {
	t.Helper()

	var console bytes.Buffer
	logger, err := logging.New(logging.Config{
		Level:   "debug",
		Console: &console,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	return logger, &console
}
