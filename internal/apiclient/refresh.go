package apiclient

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/internal/session"
)

const refreshFlight = "refresh"

// freshToken returns an access token newer than rejected. If another request
// already rotated the token it is reused; otherwise concurrent callers share a
// single refresh exchange and all see its outcome.
func (c *Client) freshToken(ctx context.Context, rejected string) (string, error) {
	if current := c.sessions.AccessToken(); current != "" && current != rejected {
		return current, nil
	}

	ch := c.refreshes.DoChan(refreshFlight, func() (interface{}, error) {
		// A flight that finished between the check above and DoChan already rotated it.
		if current := c.sessions.AccessToken(); current != "" && current != rejected {
			return current, nil
		}
		// Detached: one waiter giving up must not fail the exchange for the others.
		return c.exchange(context.WithoutCancel(ctx))
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

// exchange trades the refresh credential for a new access token. Any failure
// ends the session and sends the user to the login route.
func (c *Client) exchange(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.adapter.Timeout())
	defer cancel()

	refreshToken := c.sessions.RefreshToken()
	var cookies map[string]string
	if refreshToken != "" && c.cfg.RefreshCookie != "" {
		cookies = map[string]string{c.cfg.RefreshCookie: refreshToken}
	}

	r := Request{
		Method: http.MethodPost,
		Path:   c.cfg.RefreshPath,
		Body:   transport.RefreshRequest{RefreshToken: refreshToken},
	}
	resp, err := c.roundTrip(ctx, r, "", cookies)
	if err != nil {
		return "", c.refreshFailed(ctx, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", c.refreshFailed(ctx, newError(r, resp))
	}

	payload, res, err := transport.Decode[transport.RefreshResponse](resp.Body)
	if err != nil {
		return "", c.refreshFailed(ctx, err)
	}
	if res.Success == nil || !*res.Success || payload.AccessToken == "" {
		return "", c.refreshFailed(ctx, nil)
	}

	rotated := payload.RefreshToken
	if rotated == "" {
		rotated = resp.RefreshCookie
	}
	if err := c.sessions.UpdateTokens(ctx, payload.AccessToken, rotated); err != nil {
		return "", c.refreshFailed(ctx, err)
	}

	c.logger.Debug("access token refreshed")
	return payload.AccessToken, nil
}

func (c *Client) refreshFailed(ctx context.Context, cause error) error {
	c.logger.Warn("token refresh failed", zap.Error(cause))
	c.expire(ctx, session.ReasonRefreshFailed)
	return refreshFailure(cause)
}
