package config

import "time"

type Config struct {
	API           APIConfig           `yaml:"api"`
	Session       SessionConfig       `yaml:"session"`
	Log           LogConfig           `yaml:"log"`
	Observability ObservabilityConfig `yaml:"observability"`
	Events        EventsConfig        `yaml:"events"`
	Report        ReportConfig        `yaml:"report"`
}

type APIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RefreshPath     string        `yaml:"refresh_path"`
	LoginRoute      string        `yaml:"login_route"`
	CoalesceRefresh bool          `yaml:"coalesce_refresh"`
	UserAgent       string        `yaml:"user_agent"`
}

type SessionConfig struct {
	Driver    string             `yaml:"driver"`
	Namespace string             `yaml:"namespace"`
	File      SessionFileStore   `yaml:"file,omitempty"`
	SQLite    SessionSQLiteStore `yaml:"sqlite,omitempty"`
	Redis     SessionRedisStore  `yaml:"redis,omitempty"`
}

type SessionFileStore struct {
	Path string `yaml:"path"`
}

type SessionSQLiteStore struct {
	DSN string `yaml:"dsn"`
}

type SessionRedisStore struct {
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

type LogConfig struct {
	Level        string `yaml:"log_level"`
	ConsoleLevel string `yaml:"console_level"`
	Dir          string `yaml:"log_dir"`
	File         string `yaml:"log_file"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventsConfig controls the session event bus. Persisting events needs a
// sqlite database (session.sqlite.dsn).
type EventsConfig struct {
	Persist bool `yaml:"persist"`
	Workers int  `yaml:"workers"`
}

type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// NeedsDatabase reports whether any component requires the sqlite handle.
func (c *Config) NeedsDatabase() bool {
	return c.Session.Driver == "sqlite" || c.Events.Persist
}
