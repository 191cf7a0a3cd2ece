package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemviz-client-go/internal/apiclient"
	domainauth "chemviz-client-go/internal/domain/auth"
	"chemviz-client-go/internal/domain/auth/store"
	"chemviz-client-go/internal/domain/dataset"
	"chemviz-client-go/internal/domain/eventbus/repository"
	ptesting "chemviz-client-go/internal/platform/testing"
)

type testApp struct {
	app     *App
	backend *ptesting.FakeBackend
	stdin   *bytes.Buffer
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
}

func newTestApp(t *testing.T, events repository.EventRepository) *testApp {
	t.Helper()

	backend := ptesting.NewFakeBackend(t)
	logger, _ := ptesting.SetupTestLogger(t)
	client, err := apiclient.New(apiclient.Options{
		BaseURL: backend.BaseURL,
		Store:   store.NewMemory(store.Config{}),
		Timeout: 5 * time.Second,
		Logger:  logger,
	})
	require.NoError(t, err)
	manager, err := domainauth.NewManager(domainauth.Options{Client: client, Logger: logger})
	require.NoError(t, err)

	ta := &testApp{
		backend: backend,
		stdin:   &bytes.Buffer{},
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
	}
	ta.app = New(Deps{
		Auth:      manager,
		Datasets:  dataset.NewService(client, logger),
		Events:    events,
		ReportDir: t.TempDir(),
		Logger:    logger,
		Stdin:     ta.stdin,
		Stdout:    ta.stdout,
		Stderr:    ta.stderr,
	})
	return ta
}

func (ta *testApp) run(args ...string) int {
	ta.stdout.Reset()
	ta.stderr.Reset()
	return ta.app.Run(context.Background(), args)
}

func TestParseGlobal(t *testing.T) {
	var stderr bytes.Buffer
	opts, rest, err := ParseGlobal([]string{"--base-url", "http://x/api", "--debug", "datasets", "list", "--details"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "http://x/api", opts.BaseURL)
	assert.True(t, opts.Debug)
	assert.Equal(t, []string{"datasets", "list", "--details"}, rest)

	_, _, err = ParseGlobal(nil, &stderr)
	assert.ErrorIs(t, err, ErrUsage)

	_, _, err = ParseGlobal([]string{"--nope"}, &stderr)
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRegisterReadsPasswordFromStdin(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.stdin.WriteString("s3cret\n")

	code := ta.run("register", "--username", "alice", "--email", "alice@example.com")
	require.Equal(t, ExitOK, code, ta.stderr.String())
	assert.Contains(t, ta.stdout.String(), "registered and logged in as alice")

	code = ta.run("profile")
	require.Equal(t, ExitOK, code, ta.stderr.String())
	assert.Contains(t, ta.stdout.String(), "alice@example.com")
}

func TestRegisterDuplicateShowsBackendMessage(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.backend.AddUser("alice", "pw")

	code := ta.run("register", "--username", "alice", "--password", "pw")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, ta.stderr.String(), "username: A user with that username already exists. (400)")
}

func TestLoginFlows(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.backend.AddUser("bob", "pw")

	assert.Equal(t, ExitUsage, ta.run("login", "--password", "pw"))
	assert.Equal(t, ExitUsage, ta.run("login", "--username", "bob"), "empty stdin means no password")

	assert.Equal(t, ExitError, ta.run("login", "--username", "bob", "--password", "nope"))
	assert.Contains(t, ta.stderr.String(), "invalid credentials")

	require.Equal(t, ExitOK, ta.run("login", "--email", "bob@example.com", "--password", "pw"))
	assert.Contains(t, ta.stdout.String(), "logged in as bob")

	require.Equal(t, ExitOK, ta.run("status"))
	out := ta.stdout.String()
	assert.Contains(t, out, "logged in")
	assert.Contains(t, out, "bob (id 1)")
	assert.Contains(t, out, "refresh token  present")

	require.Equal(t, ExitOK, ta.run("logout"))
	require.Equal(t, ExitOK, ta.run("status"))
	assert.Contains(t, ta.stdout.String(), "not logged in")
}

func TestProfileWithoutSession(t *testing.T) {
	ta := newTestApp(t, nil)

	assert.Equal(t, ExitError, ta.run("profile"))
	assert.Contains(t, ta.stderr.String(), "not logged in")
}

func TestSessionExpiredExitCode(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.backend.AddUser("carol", "pw")
	require.Equal(t, ExitOK, ta.run("login", "--username", "carol", "--password", "pw"))

	ta.backend.ExpireAccessTokens()
	ta.backend.SetFailRefresh(true)

	assert.Equal(t, ExitSessionExpired, ta.run("datasets", "list"))
	assert.NotContains(t, ta.stderr.String(), "error:")
}

func TestDatasetCommands(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.backend.AddUser("dana", "pw")
	require.Equal(t, ExitOK, ta.run("login", "--username", "dana", "--password", "pw"))

	csv := filepath.Join(t.TempDir(), "plant.csv")
	require.NoError(t, os.WriteFile(csv, []byte("Equipment Name,Type,Flowrate,Pressure,Temperature\nP1,Pump,100,5,110\nP2,Pump,80,4,100\nV1,Valve,50,3,90\n"), 0o600))

	require.Equal(t, ExitOK, ta.run("datasets", "upload", csv), ta.stderr.String())
	assert.Contains(t, ta.stdout.String(), "uploaded plant.csv as dataset 1 (3 records)")

	require.Equal(t, ExitOK, ta.run("datasets", "list", "--details"))
	out := ta.stdout.String()
	assert.Contains(t, out, "plant.csv")
	assert.Contains(t, out, "Equipment across datasets")

	require.Equal(t, ExitOK, ta.run("datasets", "show", "1", "--records"))
	out = ta.stdout.String()
	assert.Contains(t, out, "Dataset 1: plant.csv")
	assert.Contains(t, out, "Pump")
	assert.Contains(t, out, strings.Repeat("#", barWidth))
	assert.Contains(t, out, "V1")

	require.Equal(t, ExitOK, ta.run("report", "--out", t.TempDir(), "1"))
	assert.Contains(t, ta.stdout.String(), "report saved to")

	require.Equal(t, ExitOK, ta.run("datasets", "delete", "1"))
	assert.Contains(t, ta.stdout.String(), "Dataset deleted successfully (dataset 1)")

	assert.Equal(t, ExitError, ta.run("datasets", "show", "1"))
	assert.Contains(t, ta.stderr.String(), "dataset 1 not found")

	require.Equal(t, ExitOK, ta.run("datasets", "list"))
	assert.Contains(t, ta.stdout.String(), "no datasets")
}

func TestDatasetUsageErrors(t *testing.T) {
	ta := newTestApp(t, nil)

	for _, args := range [][]string{
		{"datasets"},
		{"datasets", "rename"},
		{"datasets", "show"},
		{"datasets", "show", "abc"},
		{"datasets", "delete", "-3"},
		{"datasets", "upload"},
		{"report"},
		{"nonsense"},
	} {
		assert.Equal(t, ExitUsage, ta.run(args...), "%v", args)
	}
}

func TestEventsWithoutHistory(t *testing.T) {
	ta := newTestApp(t, nil)

	assert.Equal(t, ExitError, ta.run("events"))
	assert.Contains(t, ta.stderr.String(), "event history is off")
}

type stubEvents struct {
	repository.EventRepository
	events []*repository.Event
	topic  string
}

func (s *stubEvents) Recent(context.Context, int) ([]*repository.Event, error) {
	return s.events, nil
}

func (s *stubEvents) FindByTopic(_ context.Context, topic string, _ int) ([]*repository.Event, error) {
	s.topic = topic
	return s.events[:1], nil
}

func TestEventsCommand(t *testing.T) {
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	repo := &stubEvents{events: []*repository.Event{
		{Topic: "session:expired", Namespace: "default", CreatedAt: at, Data: map[string]interface{}{"reason": "token refresh failed", "login_route": "/login", "namespace": "default"}},
		{Topic: "session:started", Namespace: "default", CreatedAt: at.Add(-time.Hour), Data: map[string]interface{}{"username": "alice"}},
	}}
	ta := newTestApp(t, repo)

	require.Equal(t, ExitOK, ta.run("events"))
	out := ta.stdout.String()
	assert.Contains(t, out, "login_route=/login reason=token refresh failed")
	assert.Contains(t, out, "username=alice")

	require.Equal(t, ExitOK, ta.run("events", "--topic", "session:expired"))
	assert.Equal(t, "session:expired", repo.topic)
	assert.NotContains(t, ta.stdout.String(), "username=alice")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitUsage, ExitCode(fmt.Errorf("%w: bad", ErrUsage)))
	assert.Equal(t, ExitSessionExpired, ExitCode(&apiclient.AuthRefreshError{Err: errors.New("401")}))
	assert.Equal(t, ExitError, ExitCode(errors.New("boom")))
}

func TestParseID(t *testing.T) {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	out := fs.String("out", "", "")
	id, err := parseID(fs, []string{"7", "--out", "dir"})
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	assert.Equal(t, "dir", *out)

	fs = flag.NewFlagSet("report", flag.ContinueOnError)
	fs.String("out", "", "")
	id, err = parseID(fs, []string{"--out", "dir", "9"})
	require.NoError(t, err)
	assert.Equal(t, 9, id)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("boom"), "boom"},
		{"error key", &apiclient.HTTPStatusError{StatusCode: 404, Body: []byte(`{"error":"Dataset not found"}`)}, "Dataset not found (404)"},
		{"detail key", &apiclient.HTTPStatusError{StatusCode: 401, Body: []byte(`{"detail":"Given token not valid"}`)}, "Given token not valid (401)"},
		{"field errors", &apiclient.HTTPStatusError{StatusCode: 400, Body: []byte(`{"password":["This field is required."],"email":["Enter a valid email."]}`)}, "email: Enter a valid email.; password: This field is required. (400)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.err))
		})
	}
}
