package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemviz-client-go/internal/apiclient"
	"chemviz-client-go/internal/domain/auth/model"
	"chemviz-client-go/internal/domain/auth/store"
	"chemviz-client-go/internal/domain/eventbus"
	ptesting "chemviz-client-go/internal/platform/testing"
)

type publishedEvents struct {
	mu     sync.Mutex
	topics []string
	data   []eventbus.SessionEventData
}

func (p *publishedEvents) Publish(topic string, data eventbus.SessionEventData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.data = append(p.data, data)
}

func (p *publishedEvents) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func (p *publishedEvents) Last() eventbus.SessionEventData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[len(p.data)-1]
}

type harness struct {
	backend *ptesting.FakeBackend
	store   store.Store
	events  *publishedEvents
	manager *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := ptesting.NewFakeBackend(t)
	logger, _ := ptesting.SetupTestLogger(t)
	events := &publishedEvents{}
	sessions := store.NewMemory(store.Config{Namespace: "lab"})

	client, err := apiclient.New(apiclient.Options{
		BaseURL: backend.BaseURL,
		Store:   sessions,
		Timeout: 5 * time.Second,
		Logger:  logger,
		Hooks:   EventHooks(events, "lab"),
	})
	require.NoError(t, err)

	manager, err := NewManager(Options{
		Client:    client,
		Logger:    logger,
		Events:    events,
		Namespace: "lab",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return &harness{backend: backend, store: sessions, events: events, manager: manager}
}

func (h *harness) creds(t *testing.T) model.Credentials {
	t.Helper()
	creds, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return creds
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Options{})
	assert.Error(t, err)

	client, err := apiclient.New(apiclient.Options{BaseURL: "http://localhost", Store: store.NewMemory(store.Config{})})
	require.NoError(t, err)
	_, err = NewManager(Options{Client: client})
	assert.Error(t, err)
}

func TestRegisterStoresPairAndStartsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.manager.Register(ctx, RegisterRequest{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "s3cret",
		FirstName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)

	creds := h.creds(t)
	assert.Equal(t, resp.Access, creds.AccessToken)
	assert.Equal(t, resp.Refresh, creds.RefreshToken)
	assert.False(t, creds.UpdatedAt.IsZero())

	assert.Equal(t, []string{eventbus.EventSessionStarted}, h.events.Topics())
	assert.Equal(t, "lab", h.events.Last().Namespace)
	assert.Equal(t, "alice", h.events.Last().Username)

	user, err := h.manager.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.FirstName)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("alice", "pw")

	_, err := h.manager.Register(context.Background(), RegisterRequest{Username: "alice", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, 400, apiclient.StatusCode(err))
	assert.True(t, h.creds(t).Empty())
	assert.Empty(t, h.events.Topics())
}

func TestRegisterRequiresUsernameAndPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.Register(context.Background(), RegisterRequest{Username: "alice"})
	assert.Error(t, err)
	assert.Zero(t, h.backend.Count("POST", "/api/auth/register/"))
}

func TestLoginByUsernameAndEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.AddUser("bob", "pw")

	resp, err := h.manager.Login(ctx, LoginRequest{Username: "bob", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, resp.Access, h.creds(t).AccessToken)

	resp, err = h.manager.Login(ctx, LoginRequest{Email: "bob@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "bob", resp.User.Username)
	assert.Len(t, h.events.Topics(), 2)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("bob", "pw")

	_, err := h.manager.Login(context.Background(), LoginRequest{Username: "bob", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, IsInvalidCredentials(err))
	assert.False(t, apiclient.IsSessionExpired(err))
	assert.Zero(t, h.backend.RefreshCalls())
	assert.True(t, h.creds(t).Empty())
}

func TestProfileRefreshesExpiredAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.AddUser("carol", "pw")
	_, err := h.manager.Login(ctx, LoginRequest{Username: "carol", Password: "pw"})
	require.NoError(t, err)
	before := h.creds(t)

	h.backend.ExpireAccessTokens()
	user, err := h.manager.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Username)

	after := h.creds(t)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.Equal(t, before.RefreshToken, after.RefreshToken)
	assert.Equal(t, 1, h.backend.RefreshCalls())
	assert.Equal(t, []string{eventbus.EventSessionStarted, eventbus.EventSessionRefreshed}, h.events.Topics())
}

func TestProfileExpiresSessionWhenRefreshFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.AddUser("dave", "pw")
	_, err := h.manager.Login(ctx, LoginRequest{Username: "dave", Password: "pw"})
	require.NoError(t, err)

	h.backend.ExpireAccessTokens()
	h.backend.SetFailRefresh(true)

	_, err = h.manager.Profile(ctx)
	require.Error(t, err)
	assert.True(t, apiclient.IsSessionExpired(err))
	assert.True(t, h.creds(t).Empty())

	assert.Equal(t, []string{eventbus.EventSessionStarted, eventbus.EventSessionExpired}, h.events.Topics())
	expired := h.events.Last()
	assert.Equal(t, "/login", expired.LoginRoute)
	assert.Equal(t, "lab", expired.Namespace)
	assert.NotEmpty(t, expired.Reason)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.AddUser("erin", "pw")
	_, err := h.manager.Login(ctx, LoginRequest{Username: "erin", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, h.manager.Logout(ctx))
	assert.True(t, h.creds(t).Empty())
	assert.Equal(t, eventbus.EventSessionEnded, h.events.Topics()[1])
	assert.Equal(t, "erin", h.events.Last().Username)

	require.NoError(t, h.manager.Logout(ctx))
	assert.Len(t, h.events.Topics(), 2, "logging out twice publishes once")
}

func TestCheckAuth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, err := h.manager.CheckAuth(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Zero(t, h.backend.Count("GET", "/api/auth/profile/"))

	h.backend.AddUser("frank", "pw")
	_, err = h.manager.Login(ctx, LoginRequest{Username: "frank", Password: "pw"})
	require.NoError(t, err)

	user, err = h.manager.CheckAuth(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "frank", user.Username)
}

func TestCheckAuthLogsOutOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, model.Credentials{AccessToken: "stale"}))

	user, err := h.manager.CheckAuth(ctx)
	require.Error(t, err)
	assert.Nil(t, user)
	assert.True(t, apiclient.IsUnauthorized(err))
	assert.True(t, h.creds(t).Empty())
	assert.Equal(t, []string{eventbus.EventSessionEnded}, h.events.Topics())
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	st, err := h.manager.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)

	h.backend.AddUser("gina", "pw")
	_, err = h.manager.Login(ctx, LoginRequest{Username: "gina", Password: "pw"})
	require.NoError(t, err)

	st, err = h.manager.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.True(t, st.HasRefresh)
	assert.Equal(t, "gina", st.Username)
	assert.Equal(t, "1", st.Subject)
	assert.True(t, st.ExpiresAt.After(time.Now()))
	assert.False(t, st.Expired)

	h.manager.now = func() time.Time { return st.ExpiresAt.Add(time.Second) }
	st, err = h.manager.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Expired)
}

func TestStatusWithOpaqueToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, model.Credentials{AccessToken: "opaque", RefreshToken: "r"}))

	st, err := h.manager.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.Empty(t, st.Subject)
	assert.True(t, st.ExpiresAt.IsZero())
}

func TestStats(t *testing.T) {
	h := newHarness(t)

	stats, err := h.manager.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory", stats["type"])
	assert.Equal(t, "lab", stats["namespace"])
}
