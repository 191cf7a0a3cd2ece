package config

import "time"

const (
	DefaultBaseURL     = "http://localhost:8000/api"
	DefaultRefreshPath = "/auth/token/refresh/"
	DefaultLoginRoute  = "/login"
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     DefaultBaseURL,
			Timeout:     30 * time.Second,
			RefreshPath: DefaultRefreshPath,
			LoginRoute:  DefaultLoginRoute,
			UserAgent:   "chemviz-client/1.0",
		},
		Session: SessionConfig{
			Driver:    "file",
			Namespace: "default",
			File: SessionFileStore{
				Path: "~/.chemviz/session.json",
			},
			SQLite: SessionSQLiteStore{
				DSN: "~/.chemviz/chemviz.db",
			},
			Redis: SessionRedisStore{
				Prefix: "chemviz:session:",
			},
		},
		Log: LogConfig{
			Level:        "info",
			ConsoleLevel: "warn",
			Dir:          "~/.chemviz/logs",
			File:         "chemviz.log",
		},
		Events: EventsConfig{
			Workers: 2,
		},
		Report: ReportConfig{
			OutputDir: ".",
		},
	}
}
