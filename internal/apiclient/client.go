package apiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"chemviz-client-go/internal/domain/auth/model"
	"chemviz-client-go/internal/domain/auth/store"
	"chemviz-client-go/internal/platform/observability"
)

const (
	DefaultRefreshPath = "/auth/token/refresh/"
	DefaultLoginRoute  = "/login"
	DefaultTimeout     = 30 * time.Second

	headerRequestID = "X-Request-ID"
)

// Attempt tells send whether a 401 may still trigger a refresh.
type Attempt int

const (
	AttemptOriginal Attempt = iota
	AttemptRetried
)

func (a Attempt) String() string {
	if a == AttemptRetried {
		return "retried"
	}
	return "original"
}

// SessionExpired is emitted once per failed refresh, after both tokens
// have been cleared.
type SessionExpired struct {
	Reason     string
	LoginRoute string
	Err        error
	At         time.Time
}

// TokenRefreshed is emitted after a new access token has been stored.
type TokenRefreshed struct {
	At time.Time
}

// Hooks let the host react to session changes. Nil callbacks are skipped.
type Hooks struct {
	OnSessionExpired func(ctx context.Context, ev SessionExpired)
	OnTokenRefreshed func(ctx context.Context, ev TokenRefreshed)
}

// Options encapsulates the dependencies required to construct a Client.
type Options struct {
	BaseURL     string
	Store       store.Store
	HTTPClient  *http.Client
	Timeout     time.Duration
	RefreshPath string
	LoginRoute  string
	UserAgent   string
	// CoalesceRefresh shares one in-flight refresh between concurrent 401s
	// carrying the same refresh token.
	CoalesceRefresh bool
	Logger          model.Logger
	Hooks           Hooks
}

// Client sends requests to the backend, attaching the stored bearer token
// and refreshing it once when a request is rejected with 401.
type Client struct {
	baseURL     string
	store       store.Store
	http        *http.Client
	refreshPath string
	loginRoute  string
	userAgent   string
	coalesce    bool
	logger      model.Logger
	hooks       Hooks
	group       singleflight.Group
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New("apiclient requires a session store")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("apiclient requires a base url")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	refreshPath := opts.RefreshPath
	if refreshPath == "" {
		refreshPath = DefaultRefreshPath
	}
	loginRoute := opts.LoginRoute
	if loginRoute == "" {
		loginRoute = DefaultLoginRoute
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Client{
		baseURL:     base,
		store:       opts.Store,
		http:        httpClient,
		refreshPath: refreshPath,
		loginRoute:  loginRoute,
		userAgent:   opts.UserAgent,
		coalesce:    opts.CoalesceRefresh,
		logger:      logger,
		hooks:       opts.Hooks,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Store exposes the session store the client reads tokens from.
func (c *Client) Store() store.Store {
	return c.store
}

// Do sends req with the current access token. See send for the 401 path.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	creds, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, AttemptOriginal, creds.AccessToken)
}

// send dispatches a clone of req carrying bearer. A 401 on the original
// attempt with a stored refresh token triggers one refresh and one re-send
// with the new token; every other outcome is returned as is.
func (c *Client) send(ctx context.Context, req *Request, attempt Attempt, bearer string) (*Response, error) {
	out := req.Clone()
	if bearer != "" {
		out.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.dispatch(ctx, out, attempt)
	if err == nil || attempt == AttemptRetried || !IsUnauthorized(err) {
		return resp, err
	}

	creds, loadErr := c.store.Load(ctx)
	if loadErr != nil {
		c.logger.Warn("[apiclient] load refresh token failed: %v", loadErr)
		return nil, err
	}
	if creds.RefreshToken == "" {
		c.logger.Debug("[apiclient] %s %s: 401 without refresh token", req.Method, req.Path)
		return nil, err
	}

	access, refreshErr := c.refreshAccess(ctx, creds.RefreshToken)
	if refreshErr != nil {
		return nil, refreshErr
	}
	return c.send(ctx, req, AttemptRetried, access)
}

// dispatch performs a single HTTP exchange. It never touches the session.
func (c *Client) dispatch(ctx context.Context, req *Request, attempt Attempt) (*Response, error) {
	target := c.resolve(req)
	spanCtx, end := observability.StartSpan(ctx, "apiclient", req.Method+" "+req.Path)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(spanCtx, req.Method, target, body)
	if err != nil {
		end(err)
		return nil, &NetworkError{Method: req.Method, URL: target, Err: err}
	}
	for key, values := range req.Header {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if httpReq.Header.Get(headerRequestID) == "" {
		httpReq.Header.Set(headerRequestID, uuid.NewString())
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		end(err)
		c.record(ctx, req.Method, "error", attempt, start)
		c.logger.Debug("[apiclient] %s %s (%s): %v", req.Method, req.Path, attempt, err)
		return nil, &NetworkError{Method: req.Method, URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		end(err)
		c.record(ctx, req.Method, "error", attempt, start)
		return nil, &NetworkError{Method: req.Method, URL: target, Err: err}
	}

	c.record(ctx, req.Method, strconv.Itoa(httpResp.StatusCode), attempt, start)
	c.logger.Debug("[apiclient] %s %s (%s) -> %d in %s", req.Method, req.Path, attempt, httpResp.StatusCode, time.Since(start))

	if httpResp.StatusCode >= http.StatusBadRequest {
		statusErr := &HTTPStatusError{
			Method:     req.Method,
			URL:        target,
			StatusCode: httpResp.StatusCode,
			Body:       payload,
		}
		end(statusErr)
		return nil, statusErr
	}
	end(nil)
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       payload,
	}, nil
}

func (c *Client) resolve(req *Request) string {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}
	return target
}

func (c *Client) record(ctx context.Context, method, status string, attempt Attempt, start time.Time) {
	labels := map[string]string{"method": method, "status": status, "attempt": attempt.String()}
	observability.RecordMetric(ctx, "apiclient.requests", 1, labels)
	observability.RecordMetric(ctx, "apiclient.request.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"method": method})
}

// GetJSON sends GET path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, NewRequest(http.MethodGet, path))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeJSON(out)
}

// PostJSON sends payload as JSON to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	req, err := NewJSONRequest(http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.DecodeJSON(out)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
