package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemviz-client-go/internal/platform/errors"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader().WithDotEnv(false).WithEnv(envMap(env))
	l.homeDir = func() (string, error) { return "/home/tester", nil }
	return l
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	res, err := newTestLoader(nil).Load()
	require.NoError(t, err)

	assert.Empty(t, res.Path)
	assert.Equal(t, DefaultBaseURL, res.Config.API.BaseURL)
	assert.Equal(t, 30*time.Second, res.Config.API.Timeout)
	assert.Equal(t, "file", res.Config.Session.Driver)
	assert.Equal(t, "/home/tester/.chemviz/session.json", res.Config.Session.File.Path)
	assert.Equal(t, "/home/tester/.chemviz/logs", res.Config.Log.Dir)
	assert.False(t, res.Config.API.CoalesceRefresh)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://chem.example.com/api
  timeout: 5s
  coalesce_refresh: true
session:
  driver: redis
  redis:
    addr: 127.0.0.1:6379
    ttl: 1h
log:
  log_level: debug
`)

	res, err := newTestLoader(nil).WithPath(path).Load()
	require.NoError(t, err)

	cfg := res.Config
	assert.Equal(t, path, res.Path)
	assert.Equal(t, "https://chem.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.API.CoalesceRefresh)
	assert.Equal(t, DefaultRefreshPath, cfg.API.RefreshPath)
	assert.Equal(t, "redis", cfg.Session.Driver)
	assert.Equal(t, time.Hour, cfg.Session.Redis.TTL)
	assert.Equal(t, "chemviz:session:", cfg.Session.Redis.Prefix)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://file.example.com/api\n")

	res, err := newTestLoader(map[string]string{
		"CHEMVIZ_API_BASE_URL":     "http://env.example.com/api",
		"CHEMVIZ_API_TIMEOUT":      "2s",
		"CHEMVIZ_SESSION_DRIVER":   "memory",
		"CHEMVIZ_COALESCE_REFRESH": "true",
	}).WithPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.com/api", res.Config.API.BaseURL)
	assert.Equal(t, 2*time.Second, res.Config.API.Timeout)
	assert.Equal(t, "memory", res.Config.Session.Driver)
	assert.True(t, res.Config.API.CoalesceRefresh)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]struct {
		yaml string
		env  map[string]string
	}{
		"relative base url": {yaml: "api:\n  base_url: /api\n"},
		"unknown driver":    {yaml: "session:\n  driver: etcd\n"},
		"redis without addr": {
			yaml: "session:\n  driver: redis\n",
		},
		"refresh path without slash": {yaml: "api:\n  refresh_path: auth/refresh\n"},
		"bad timeout env": {
			yaml: "{}\n",
			env:  map[string]string{"CHEMVIZ_API_TIMEOUT": "soon"},
		},
		"negative workers": {yaml: "events:\n  workers: -1\n"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := newTestLoader(tt.env).WithPath(path).Load()
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindConfig), "unexpected kind for %v", err)
		})
	}
}

func TestMissingPinnedFile(t *testing.T) {
	_, err := newTestLoader(nil).WithPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestNeedsDatabase(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.NeedsDatabase())

	cfg.Events.Persist = true
	assert.True(t, cfg.NeedsDatabase())

	cfg.Events.Persist = false
	cfg.Session.Driver = "sqlite"
	assert.True(t, cfg.NeedsDatabase())
}

func TestOverridesWinOverEnvironmentAndAreValidated(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://file.example/api\n")
	env := map[string]string{"CHEMVIZ_API_BASE_URL": "http://env.example/api"}

	res, err := newTestLoader(env).WithPath(path).WithOverride(func(c *Config) {
		c.API.BaseURL = "http://flag.example/api"
	}).Load()
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example/api", res.Config.API.BaseURL)

	_, err = newTestLoader(nil).WithPath(path).WithOverride(func(c *Config) {
		c.API.BaseURL = "not a url"
	}).Load()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}
