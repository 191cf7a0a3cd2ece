package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"chemviz-client-go/internal/apiclient"
	"chemviz-client-go/internal/domain/auth/model"
	"chemviz-client-go/internal/domain/eventbus"
	platformerrors "chemviz-client-go/internal/platform/errors"
)

type (
	// User re-exports the shared auth entity for callers.
	User = model.User
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

const (
	registerPath = "/auth/register/"
	loginPath    = "/auth/login/"
	profilePath  = "/auth/profile/"
)

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Client    *apiclient.Client
	Logger    Logger
	Events    Publisher
	Namespace string
}

// Manager runs the account flows on top of the authenticated client and
// keeps the stored credential pair in step with them.
type Manager struct {
	client    *apiclient.Client
	logger    Logger
	events    Publisher
	namespace string
	now       func() time.Time
}

// RegisterRequest is the payload of POST /auth/register/.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// LoginRequest authenticates by username or, when Username is empty, by
// email.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User    User   `json:"user"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Status describes the stored session without contacting the backend.
type Status struct {
	Authenticated bool
	HasRefresh    bool
	Subject       string
	Username      string
	ExpiresAt     time.Time
	Expired       bool
	UpdatedAt     time.Time
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Client == nil {
		return nil, errors.New("auth manager requires an api client")
	}
	if opts.Logger == nil {
		return nil, errors.New("auth manager requires a logger")
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "default"
	}
	return &Manager{
		client:    opts.Client,
		logger:    opts.Logger,
		events:    opts.Events,
		namespace: namespace,
		now:       time.Now,
	}, nil
}

// Register creates an account and stores the returned token pair.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, platformerrors.New(platformerrors.KindDomain, "auth.register", "username and password are required")
	}
	return m.authenticate(ctx, "auth.register", registerPath, req, req.Username)
}

// Login exchanges credentials for a token pair and stores it.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if (req.Username == "" && req.Email == "") || req.Password == "" {
		return nil, platformerrors.New(platformerrors.KindDomain, "auth.login", "username or email and a password are required")
	}
	who := req.Username
	if who == "" {
		who = req.Email
	}
	return m.authenticate(ctx, "auth.login", loginPath, req, who)
}

func (m *Manager) authenticate(ctx context.Context, op, path string, payload any, who string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := m.client.PostJSON(ctx, path, payload, &resp); err != nil {
		m.logger.Warn("[auth] %s for %s failed: %v", op, who, err)
		return nil, err
	}
	if resp.Access == "" || resp.Refresh == "" {
		return nil, platformerrors.New(platformerrors.KindAuth, op, "response did not contain a token pair")
	}

	creds := model.Credentials{
		AccessToken:  resp.Access,
		RefreshToken: resp.Refresh,
		UpdatedAt:    m.now(),
	}
	if err := m.client.Store().Save(ctx, creds); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, op, "save session", err)
	}

	m.logger.Info("[auth] session started for %s", resp.User.Username)
	m.publish(eventbus.EventSessionStarted, resp.User.Username, op)
	return &resp, nil
}

// Profile fetches the current user.
func (m *Manager) Profile(ctx context.Context) (*User, error) {
	var user User
	if err := m.client.GetJSON(ctx, profilePath, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout erases the stored pair. Logging out without a session is not an
// error.
func (m *Manager) Logout(ctx context.Context) error {
	creds, err := m.client.Store().Load(ctx)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "auth.logout", "load session", err)
	}
	if err := m.client.Store().Clear(ctx); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "auth.logout", "clear session", err)
	}
	if creds.Empty() {
		return nil
	}

	username := ""
	if claims, err := InspectToken(creds.AccessToken); err == nil {
		username = claims.Username
	}
	m.logger.Info("[auth] session ended")
	m.publish(eventbus.EventSessionEnded, username, "logout")
	return nil
}

// CheckAuth validates a stored session against the backend. With no access
// token it returns nil, nil. When the profile cannot be fetched the session
// is logged out and the error returned.
func (m *Manager) CheckAuth(ctx context.Context) (*User, error) {
	creds, err := m.client.Store().Load(ctx)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "auth.check", "load session", err)
	}
	if creds.AccessToken == "" {
		return nil, nil
	}

	user, err := m.Profile(ctx)
	if err != nil {
		if ctx.Err() == nil {
			if logoutErr := m.Logout(context.WithoutCancel(ctx)); logoutErr != nil {
				m.logger.Error("[auth] logout after failed check: %v", logoutErr)
			}
		}
		return nil, err
	}
	return user, nil
}

// Status reports what is stored, reading the access token's claims.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	creds, err := m.client.Store().Load(ctx)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "auth.status", "load session", err)
	}

	st := &Status{
		Authenticated: creds.AccessToken != "",
		HasRefresh:    creds.RefreshToken != "",
		UpdatedAt:     creds.UpdatedAt,
	}
	if !st.Authenticated {
		return st, nil
	}
	claims, err := InspectToken(creds.AccessToken)
	if err != nil {
		m.logger.Debug("[auth] access token is not a readable jwt: %v", err)
		return st, nil
	}
	st.Subject = claims.UserID
	st.Username = claims.Username
	st.ExpiresAt = claims.ExpiresAt
	st.Expired = claims.Expired(m.now())
	return st, nil
}

// Stats returns debug information from the store backend.
func (m *Manager) Stats(ctx context.Context) (map[string]any, error) {
	return m.client.Store().Stats(ctx)
}

// Close releases the session store.
func (m *Manager) Close() error {
	if err := m.client.Store().Close(context.Background()); err != nil {
		m.logger.Error("[auth] failed closing session store: %v", err)
		return err
	}
	return nil
}

func (m *Manager) publish(topic, username, reason string) {
	if m.events == nil {
		return
	}
	m.events.Publish(topic, eventbus.SessionEventData{
		Namespace: m.namespace,
		Username:  username,
		Reason:    reason,
		At:        m.now(),
	})
}

// IsInvalidCredentials reports whether err is the backend rejecting a login.
func IsInvalidCredentials(err error) bool {
	return apiclient.StatusCode(err) == http.StatusUnauthorized
}
