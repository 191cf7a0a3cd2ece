package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"chemviz-client-go/internal/platform/errors"
)

// DefaultPaths are tried in order when no explicit path is configured.
var DefaultPaths = []string{".config.yaml", "config.yaml"}

var validDrivers = map[string]bool{
	"memory": true,
	"file":   true,
	"sqlite": true,
	"redis":  true,
}

// Loader reads the YAML file, applies .env and environment overrides and
// validates the result.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
	homeDir   func() (string, error)
	overrides []func(*Config)
}

// NewLoader creates a loader that reads .env and the process environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
		homeDir:   os.UserHomeDir,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the configuration file. A missing pinned file is an error.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// WithOverride registers fn to run after the environment is applied and
// before validation. Command line flags use it to take precedence.
func (l *Loader) WithOverride(fn func(*Config)) *Loader {
	if fn != nil {
		l.overrides = append(l.overrides, fn)
	}
	return l
}

// Result captures the loaded configuration and its origin path. Path is
// empty when only defaults and environment were used.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// A missing .env is normal; the process environment still applies.
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	path, err := l.resolvePath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.read", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.parse", "parse "+path, err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	for _, fn := range l.overrides {
		fn(cfg)
	}
	if err := l.expandPaths(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) resolvePath() (string, error) {
	if l.path != "" {
		if _, err := os.Stat(l.path); err != nil {
			return "", errors.Wrap(errors.KindConfig, "config.resolve", "config file not found", err)
		}
		return l.path, nil
	}
	if p, ok := l.lookupEnv("CHEMVIZ_CONFIG"); ok && p != "" {
		return p, nil
	}
	for _, candidate := range DefaultPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	str("CHEMVIZ_API_BASE_URL", &cfg.API.BaseURL)
	str("CHEMVIZ_SESSION_DRIVER", &cfg.Session.Driver)
	str("CHEMVIZ_SESSION_NAMESPACE", &cfg.Session.Namespace)
	str("CHEMVIZ_SESSION_FILE", &cfg.Session.File.Path)
	str("CHEMVIZ_SQLITE_DSN", &cfg.Session.SQLite.DSN)
	str("CHEMVIZ_REDIS_ADDR", &cfg.Session.Redis.Addr)
	str("CHEMVIZ_REDIS_PASSWORD", &cfg.Session.Redis.Password)
	str("CHEMVIZ_LOG_LEVEL", &cfg.Log.Level)
	str("CHEMVIZ_LOG_DIR", &cfg.Log.Dir)

	if v, ok := l.lookupEnv("CHEMVIZ_API_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", "CHEMVIZ_API_TIMEOUT", err)
		}
		cfg.API.Timeout = d
	}
	if v, ok := l.lookupEnv("CHEMVIZ_COALESCE_REFRESH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", "CHEMVIZ_COALESCE_REFRESH", err)
		}
		cfg.API.CoalesceRefresh = b
	}
	return nil
}

func (l *Loader) expandPaths(cfg *Config) error {
	for _, p := range []*string{
		&cfg.Session.File.Path,
		&cfg.Session.SQLite.DSN,
		&cfg.Log.Dir,
		&cfg.Report.OutputDir,
	} {
		if !strings.HasPrefix(*p, "~/") {
			continue
		}
		home, err := l.homeDir()
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.expand", "resolve home directory", err)
		}
		*p = filepath.Join(home, strings.TrimPrefix(*p, "~/"))
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("api.base_url must be an absolute http(s) URL, got %q", cfg.API.BaseURL))
	}
	if cfg.API.Timeout <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "api.timeout must be positive")
	}
	if !strings.HasPrefix(cfg.API.RefreshPath, "/") {
		return errors.New(errors.KindConfig, "config.validate", "api.refresh_path must start with /")
	}
	if !validDrivers[cfg.Session.Driver] {
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("unsupported session driver %q", cfg.Session.Driver))
	}
	if cfg.Session.Driver == "redis" && cfg.Session.Redis.Addr == "" {
		return errors.New(errors.KindConfig, "config.validate", "session.redis.addr is required for the redis driver")
	}
	if cfg.NeedsDatabase() && cfg.Session.SQLite.DSN == "" {
		return errors.New(errors.KindConfig, "config.validate", "session.sqlite.dsn is required")
	}
	if cfg.Events.Workers < 0 {
		return errors.New(errors.KindConfig, "config.validate", "events.workers must not be negative")
	}
	return nil
}
