package apiclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/apitest"
	"github.com/fastygo/classroom/internal/session"
	"github.com/fastygo/classroom/repository/memory"
)

type recordingDoer struct {
	next Doer

	mu      sync.Mutex
	headers []string
}

func (d *recordingDoer) DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error {
	d.mu.Lock()
	d.headers = append(d.headers, string(req.Header.Peek("Authorization")))
	d.mu.Unlock()
	return d.next.DoDeadline(req, resp, deadline)
}

func (d *recordingDoer) authorizations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.headers...)
}

type errDoer struct{ err error }

func (d errDoer) DoDeadline(*fasthttp.Request, *fasthttp.Response, time.Time) error { return d.err }

type fixture struct {
	api         *apitest.Server
	sessions    *session.Store
	client      *Client
	doer        *recordingDoer
	mu          sync.Mutex
	navigations []string
}

func (f *fixture) navigated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := apitest.New()
	t.Cleanup(api.Close)

	f := &fixture{api: api}
	f.sessions = session.New(context.Background(), memory.NewSessionRepository(), nil)
	f.doer = &recordingDoer{next: api.Doer()}
	f.client = New(Config{
		BaseURL:       apitest.BaseURL,
		Timeout:       2 * time.Second,
		RefreshCookie: apitest.RefreshCookie,
	}, f.doer, f.sessions, NavigatorFunc(func(path string) {
		f.mu.Lock()
		f.navigations = append(f.navigations, path)
		f.mu.Unlock()
	}), nil)
	return f
}

func (f *fixture) signIn(t *testing.T, role domain.Role) *domain.Session {
	t.Helper()
	user := f.api.SeedUser("Ada", "a@b.com", "secret1A!", role)
	sess := f.api.IssueSession(user)
	require.NoError(t, f.sessions.Login(context.Background(), sess))
	return sess
}

func TestBearerHeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Get(ctx, "/classes/my")
	require.Error(t, err)
	assert.Equal(t, "", f.doer.authorizations()[0])

	sess := f.signIn(t, domain.RoleTeacher)
	_, err = f.client.Get(ctx, "/classes/my")
	require.NoError(t, err)
	headers := f.doer.authorizations()
	assert.Equal(t, "Bearer "+sess.AccessToken, headers[len(headers)-1])
}

func TestRefreshOnceThenSucceed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signIn(t, domain.RoleTeacher)
	f.api.RevokeAccessTokens()

	resp, err := f.client.Get(ctx, "/classes/my")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.api.RefreshCalls())
	assert.Equal(t, 2, f.api.Calls(http.MethodGet, "/classes/my"))

	current := f.sessions.Current()
	require.NotNil(t, current)
	assert.NotEqual(t, sess.AccessToken, current.AccessToken)
	assert.NotEqual(t, sess.RefreshToken, current.RefreshToken, "rotated refresh cookie should be stored")

	headers := f.doer.authorizations()
	assert.Equal(t, "Bearer "+current.AccessToken, headers[len(headers)-1])
	assert.Empty(t, f.navigated())
}

func TestRotatedRefreshTokenIsReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, domain.RoleStudent)

	for i := 0; i < 2; i++ {
		f.api.RevokeAccessTokens()
		_, err := f.client.Get(ctx, "/auth/me")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.api.RefreshCalls())
	assert.True(t, f.sessions.IsAuthenticated())
}

func TestSecondUnauthorizedEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, domain.RoleTeacher)
	f.api.FailNext(http.MethodGet, "/classes/my", http.StatusUnauthorized, http.StatusUnauthorized)

	_, err := f.client.Get(ctx, "/classes/my")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.NotErrorIs(t, err, domain.ErrRefreshFailed)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeUnauthorized))
	assert.Equal(t, 1, f.api.RefreshCalls())
	assert.Equal(t, 2, f.api.Calls(http.MethodGet, "/classes/my"))
	assert.False(t, f.sessions.IsAuthenticated())
	assert.Equal(t, []string{DefaultLoginRoute}, f.navigated())
}

func TestRefreshFailureEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, domain.RoleTeacher)
	f.api.RevokeAccessTokens()
	f.api.SetFailRefresh(true)

	_, err := f.client.Get(ctx, "/classes/my")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeUnauthorized))
	assert.False(t, f.sessions.IsAuthenticated())
	assert.Equal(t, 1, f.api.Calls(http.MethodGet, "/classes/my"), "no retry after a failed refresh")
	assert.Equal(t, []string{DefaultLoginRoute}, f.navigated())
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, domain.RoleTeacher)
	f.api.RevokeAccessTokens()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.Get(ctx, "/classes/my")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.api.RefreshCalls())
}

func TestConcurrentRefreshFailureIsUniform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, domain.RoleTeacher)
	f.api.RevokeAccessTokens()
	f.api.SetFailRefresh(true)

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.Get(ctx, "/dashboard")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.True(t, domain.IsDomainError(err, domain.ErrCodeUnauthorized))
	}
	assert.False(t, f.sessions.IsAuthenticated())
}

func TestLoginPathIsExempt(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Post(context.Background(), DefaultLoginPath, map[string]string{"email": "x@y.z", "password": "nope"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.Equal(t, 0, f.api.RefreshCalls())
	assert.Empty(t, f.navigated())
}

func TestOtherErrorsPassThrough(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, domain.RoleTeacher)
	f.api.FailNext(http.MethodGet, "/classes/my", http.StatusInternalServerError)

	_, err := f.client.Get(context.Background(), "/classes/my")
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeUnavailable))
	assert.Equal(t, 0, f.api.RefreshCalls())
	assert.True(t, f.sessions.IsAuthenticated())

	_, err = f.client.Get(context.Background(), "/classes/missing")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestTransportErrorIsUnmodified(t *testing.T) {
	sentinel := errors.New("connection refused")
	sessions := session.New(context.Background(), memory.NewSessionRepository(), nil)
	client := New(Config{BaseURL: apitest.BaseURL}, errDoer{err: sentinel}, sessions, nil, nil)

	_, err := client.Get(context.Background(), "/classes/my")
	assert.Same(t, sentinel, err)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.client.Get(ctx, "/classes/my")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.api.Calls(http.MethodGet, "/classes/my"))
}

func TestResponseResultUnwrapsEnvelope(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, domain.RoleTeacher)

	resp, err := f.client.Get(context.Background(), "/auth/me")
	require.NoError(t, err)
	res := resp.Result()
	require.True(t, res.Enveloped())
	assert.Equal(t, "User retrieved", res.Message)
	assert.Contains(t, string(res.Payload), `"name":"Ada"`)
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "server message", err: &Error{StatusCode: 400, Message: "Invalid class code"}, want: "Invalid class code"},
		{name: "status only", err: &Error{StatusCode: 502}, want: "Request failed with status code 502"},
		{name: "validation", err: &domain.ValidationError{Fields: []domain.FieldError{{Field: "code", Message: "Class code is required"}}}, want: "Class code is required"},
		{name: "plain", err: errors.New("timeout"), want: "timeout"},
		{name: "nil", err: nil, want: "An unexpected error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}
