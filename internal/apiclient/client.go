// Package apiclient is the HTTP pipeline to the classroom REST API: it attaches
// the bearer token to every request and recovers from an expired access token
// with a single silent refresh and retry.
package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/internal/session"
	"github.com/fastygo/classroom/pkg/httpcontext"
	appLogger "github.com/fastygo/classroom/pkg/logger"
)

const (
	DefaultLoginPath   = "/auth/login"
	DefaultRefreshPath = "/auth/refresh-token"
	DefaultLoginRoute  = "/login"
)

// Doer is the transport a Client sends through; *fasthttp.Client satisfies it.
type Doer interface {
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

// Navigator moves the user to another entry point, e.g. the login screen after the session ends.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	LoginPath     string
	RefreshPath   string
	LoginRoute    string
	RefreshCookie string
	UserAgent     string
	MaxConns      int
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	if c.LoginRoute == "" {
		c.LoginRoute = DefaultLoginRoute
	}
}

// Request describes one logical API call. Body is JSON-encoded when set.
type Request struct {
	Method string
	Path   string
	Body   interface{}
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Body       []byte
	// RefreshCookie holds the refresh cookie value when the server set one.
	RefreshCookie string
}

// Result interprets the body through the response envelope.
func (r *Response) Result() transport.Result {
	if r == nil {
		return transport.Result{}
	}
	return transport.Unwrap(r.Body)
}

// Client sends API requests on behalf of the current session.
type Client struct {
	cfg       Config
	doer      Doer
	sessions  *session.Store
	navigator Navigator
	adapter   *httpcontext.Adapter
	logger    *zap.Logger

	refreshes singleflight.Group
}

func New(cfg Config, doer Doer, sessions *session.Store, navigator Navigator, logger *zap.Logger) *Client {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	if navigator == nil {
		navigator = NavigatorFunc(func(string) {})
	}
	if doer == nil {
		doer = NewFastHTTPClient(cfg)
	}
	return &Client{
		cfg:       cfg,
		doer:      doer,
		sessions:  sessions,
		navigator: navigator,
		adapter:   httpcontext.NewAdapter(cfg.Timeout),
		logger:    logger,
	}
}

// NewFastHTTPClient builds the pooled transport used in production.
func NewFastHTTPClient(cfg Config) *fasthttp.Client {
	cfg.normalize()
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 16
	}
	return &fasthttp.Client{
		Name:                cfg.UserAgent,
		MaxConnsPerHost:     maxConns,
		ReadTimeout:         cfg.Timeout,
		WriteTimeout:        cfg.Timeout,
		MaxIdleConnDuration: 90 * time.Second,
	}
}

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Do sends r with the session's access token. A 401 on a refreshable path
// triggers one token refresh and one resend; a second 401 ends the session.
// Transport errors are returned unmodified, non-2xx responses as *Error.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	return c.send(ctx, r, attempt{})
}

// attempt is the retry state of one logical request.
type attempt struct {
	retried bool
	// token overrides the session token on the resend after a refresh.
	token string
}

func (c *Client) send(ctx context.Context, r Request, at attempt) (*Response, error) {
	token := at.token
	if token == "" {
		token = c.sessions.AccessToken()
	}

	resp, err := c.roundTrip(ctx, r, token, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.refreshable(r.Path) {
		if at.retried {
			c.expire(ctx, session.ReasonUnauthorized)
			return nil, sessionExpired(newError(r, resp))
		}
		fresh, err := c.freshToken(ctx, token)
		if err != nil {
			return nil, err
		}
		return c.send(ctx, r, attempt{retried: true, token: fresh})
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newError(r, resp)
	}
	return resp, nil
}

func (c *Client) refreshable(path string) bool {
	return path != c.cfg.LoginPath && path != c.cfg.RefreshPath
}

func (c *Client) roundTrip(ctx context.Context, r Request, token string, cookies map[string]string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + r.Path)
	req.Header.SetMethod(r.Method)
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, err
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(payload)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for name, value := range cookies {
		req.Header.SetCookie(name, value)
	}

	ctx, deadline := c.adapter.Attach(ctx, req)
	log := appLogger.WithRequestID(ctx, c.logger)

	start := time.Now()
	if err := c.doer.DoDeadline(req, resp, deadline); err != nil {
		log.Debug("api request failed",
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.Error(err))
		return nil, err
	}
	// The caller may have gone away while the request was in flight; drop the late response.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Response{
		StatusCode:    resp.StatusCode(),
		Body:          append([]byte(nil), resp.Body()...),
		RefreshCookie: c.refreshCookie(resp),
	}
	log.Debug("api request",
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.Int("status", out.StatusCode),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

func (c *Client) refreshCookie(resp *fasthttp.Response) string {
	if c.cfg.RefreshCookie == "" {
		return ""
	}
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(c.cfg.RefreshCookie)
	if !resp.Header.Cookie(cookie) {
		return ""
	}
	return string(cookie.Value())
}

func (c *Client) expire(ctx context.Context, reason session.LogoutReason) {
	if err := c.sessions.Logout(context.WithoutCancel(ctx), reason); err != nil {
		c.logger.Warn("failed to clear session", zap.Error(err))
	}
	c.navigator.Navigate(c.cfg.LoginRoute)
}

func newError(r Request, resp *Response) *Error {
	return &Error{
		StatusCode: resp.StatusCode,
		Method:     r.Method,
		Path:       r.Path,
		Message:    transport.ErrorMessage(resp.Body),
		Body:       resp.Body,
	}
}
