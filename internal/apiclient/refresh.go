package apiclient

import (
	"context"
	"net/http"
	"time"

	"chemviz-client-go/internal/platform/observability"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// refreshAccess exchanges refreshToken for a new access token. With
// coalescing enabled, concurrent callers holding the same refresh token
// share one call and one outcome.
func (c *Client) refreshAccess(ctx context.Context, refreshToken string) (string, error) {
	if !c.coalesce {
		return c.refresh(ctx, refreshToken)
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshToken, func() (any, error) {
		return c.refresh(shared, refreshToken)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh performs the unauthenticated refresh call. On failure both tokens
// are cleared and the session-expired hook fires once.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	ctx, end := observability.StartSpan(ctx, "apiclient", "refresh")
	observability.RecordMetric(ctx, "apiclient.refreshes", 1, nil)

	access, err := c.exchange(ctx, refreshToken)
	if err != nil {
		// A caller that gave up is not a rejected session.
		if ctxErr := ctx.Err(); ctxErr != nil {
			end(ctxErr)
			return "", ctxErr
		}
		refreshErr := &AuthRefreshError{Err: err}
		end(refreshErr)
		c.expire(ctx, refreshErr)
		return "", refreshErr
	}

	if err := c.store.SaveAccessToken(ctx, access); err != nil {
		end(err)
		return "", err
	}
	end(nil)

	c.logger.Info("[apiclient] access token refreshed")
	if c.hooks.OnTokenRefreshed != nil {
		c.hooks.OnTokenRefreshed(ctx, TokenRefreshed{At: time.Now()})
	}
	return access, nil
}

func (c *Client) exchange(ctx context.Context, refreshToken string) (string, error) {
	req, err := NewJSONRequest(http.MethodPost, c.refreshPath, refreshRequest{Refresh: refreshToken})
	if err != nil {
		return "", err
	}
	resp, err := c.dispatch(ctx, req, AttemptOriginal)
	if err != nil {
		return "", err
	}
	var body refreshResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return "", err
	}
	if body.Access == "" {
		return "", ErrMissingAccessToken
	}
	return body.Access, nil
}

func (c *Client) expire(ctx context.Context, cause error) {
	observability.RecordMetric(ctx, "apiclient.session_expired", 1, nil)
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("[apiclient] clear session after failed refresh: %v", err)
	}
	c.logger.Warn("[apiclient] session expired: %v", cause)

	if c.hooks.OnSessionExpired != nil {
		c.hooks.OnSessionExpired(ctx, SessionExpired{
			Reason:     cause.Error(),
			LoginRoute: c.loginRoute,
			Err:        cause,
			At:         time.Now(),
		})
	}
}
