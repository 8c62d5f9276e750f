// Package apitest runs an in-memory fake of the classroom REST API over fasthttp.
// Tests dial it through Doer; nothing touches the network.
package apitest

import (
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
)

const (
	BaseURL       = "http://classroom.test/api/v1"
	prefix        = "/api/v1"
	RefreshCookie = "refreshToken"
)

type account struct {
	user     domain.User
	password string
}

// Server is a scriptable fake of the classroom API.
type Server struct {
	secret    []byte
	accessTTL time.Duration

	mu            sync.Mutex
	generation    int
	accounts      map[string]*account
	emails        map[string]string
	refreshTokens map[string]string
	classes       map[string]*domain.Class
	classOrder    []string
	assignments   map[string]*domain.Assignment
	assignOrder   []string
	submissions   map[string]*domain.Submission
	subOrder      []string
	faults        map[string][]int
	calls         map[string]int
	refreshCalls  int
	failRefresh   bool
	refreshInBody bool
	minimalLogin  bool
	rawResponses  bool

	ln  *fasthttputil.InmemoryListener
	srv *fasthttp.Server
}

// New starts a fake API server. Call Close when done.
func New() *Server {
	s := &Server{
		secret:        []byte("apitest-secret"),
		accessTTL:     15 * time.Minute,
		accounts:      make(map[string]*account),
		emails:        make(map[string]string),
		refreshTokens: make(map[string]string),
		classes:       make(map[string]*domain.Class),
		assignments:   make(map[string]*domain.Assignment),
		submissions:   make(map[string]*domain.Submission),
		faults:        make(map[string][]int),
		calls:         make(map[string]int),
		ln:            fasthttputil.NewInmemoryListener(),
	}
	s.srv = &fasthttp.Server{Handler: s.middleware(s.routes().Handler), Name: "apitest"}
	go func() { _ = s.srv.Serve(s.ln) }()
	return s
}

// Close stops the server.
func (s *Server) Close() {
	_ = s.srv.Shutdown()
	_ = s.ln.Close()
}

// Doer returns a fasthttp client wired to the in-memory listener.
func (s *Server) Doer() *fasthttp.Client {
	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return s.ln.Dial() },
	}
}

func (s *Server) routes() *router.Router {
	r := router.New()
	r.GET("/health", func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) })

	r.POST(prefix+"/auth/login", s.login)
	r.POST(prefix+"/auth/register", s.register)
	r.POST(prefix+"/auth/refresh-token", s.refresh)
	r.GET(prefix+"/auth/me", s.authed(s.me))

	r.GET(prefix+"/classes/my", s.authed(s.myClasses))
	r.GET(prefix+"/classes/{id}", s.authed(s.getClass))
	r.POST(prefix+"/classes/createClass", s.authed(s.createClass))
	r.POST(prefix+"/classes/join", s.authed(s.joinClass))

	r.GET(prefix+"/assignments/class/{classId}", s.authed(s.assignmentsByClass))
	r.GET(prefix+"/assignments/{id}", s.authed(s.getAssignment))
	r.POST(prefix+"/assignments/createAssignment", s.authed(s.createAssignment))
	r.PATCH(prefix+"/assignments/{id}", s.authed(s.updateAssignment))

	r.GET(prefix+"/submissions/assignment/{assignmentId}", s.authed(s.submissionsByAssignment))
	r.GET(prefix+"/submissions/my/{assignmentId}", s.authed(s.mySubmission))
	r.POST(prefix+"/submissions/submitAssignment", s.authed(s.submitAssignment))
	r.PATCH(prefix+"/submissions/{id}/grade", s.authed(s.gradeSubmission))

	r.GET(prefix+"/dashboard", s.authed(s.dashboard))
	return r
}

// middleware counts calls and serves scripted faults before routing.
func (s *Server) middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		key := callKey(string(ctx.Method()), strings.TrimPrefix(string(ctx.Path()), prefix))

		s.mu.Lock()
		s.calls[key]++
		var status int
		if queue := s.faults[key]; len(queue) > 0 {
			status = queue[0]
			s.faults[key] = queue[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			s.fail(ctx, status, "scripted failure")
			return
		}
		next(ctx)
	}
}

// FailNext makes the next len(statuses) calls to method+path answer with those statuses in order.
// path excludes the /api/v1 prefix.
func (s *Server) FailNext(method, path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := callKey(method, path)
	s.faults[key] = append(s.faults[key], statuses...)
}

// Calls returns how many times method+path was requested.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[callKey(method, path)]
}

// RefreshCalls returns the number of refresh-token exchanges handled.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// RevokeAccessTokens invalidates every access token issued so far.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// SetFailRefresh makes the refresh endpoint reject every exchange.
func (s *Server) SetFailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// SetRefreshTokenInBody also returns refresh tokens in JSON bodies, not only as a cookie.
func (s *Server) SetRefreshTokenInBody(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshInBody = on
}

// SetMinimalLogin answers login with only name, role and tokens, without the user id or email.
func (s *Server) SetMinimalLogin(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minimalLogin = on
}

// SetRawResponses answers successful requests without the envelope.
func (s *Server) SetRawResponses(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawResponses = on
}

// SetAccessTTL changes the lifetime of newly issued access tokens.
func (s *Server) SetAccessTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = ttl
}

func callKey(method, path string) string {
	return method + " " + path
}

func (s *Server) respond(ctx *fasthttp.RequestCtx, status int, message string, data interface{}) {
	s.mu.Lock()
	raw := s.rawResponses
	s.mu.Unlock()

	if raw {
		s.writeJSON(ctx, status, data)
		return
	}
	s.writeJSON(ctx, status, transport.NewSuccess(status, message, data))
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	body, _ := json.Marshal(payload)
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, status int, message string) {
	s.writeJSON(ctx, status, transport.NewError(status, message))
}

func decodeBody(ctx *fasthttp.RequestCtx, out interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), out); err != nil {
		return false
	}
	return true
}

func param(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}
