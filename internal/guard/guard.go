// Package guard decides whether the current session may open a page and where
// to send it otherwise.
package guard

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/classroom/domain"
)

const (
	HomeRoute  = "/"
	LoginRoute = "/login"
)

// Rule protects one page. Path uses ":name" segments for parameters.
type Rule struct {
	Path   string
	Public bool
	// Roles restricts a protected page; empty means any signed-in role.
	Roles []domain.Role
}

// DefaultRules is the page table of the classroom app.
var DefaultRules = []Rule{
	{Path: "/"},
	{Path: "/login", Public: true},
	{Path: "/register", Public: true},
	{Path: "/classes"},
	{Path: "/classes/create", Roles: []domain.Role{domain.RoleTeacher}},
	{Path: "/classes/join", Roles: []domain.Role{domain.RoleStudent}},
	{Path: "/classes/:classId/assignments", Roles: []domain.Role{domain.RoleStudent}},
	{Path: "/assignments/create", Roles: []domain.Role{domain.RoleTeacher}},
	{Path: "/assignments/:assignmentId/submit", Roles: []domain.Role{domain.RoleStudent}},
	{Path: "/assignments/:assignmentId/submissions", Roles: []domain.Role{domain.RoleTeacher}},
	{Path: "/assignments/:assignmentId/my-submission", Roles: []domain.Role{domain.RoleStudent}},
	{Path: "/assignments/:assignmentId/edit", Roles: []domain.Role{domain.RoleTeacher}},
}

// Decision is the outcome of a page check.
type Decision struct {
	Allowed  bool
	Redirect string
	NotFound bool
	Rule     Rule
	Params   map[string]string
}

type Guard struct {
	router *router.Router
}

const ruleKey = "guard.rule"

// New compiles rules into a route tree.
func New(rules []Rule) (g *Guard, err error) {
	r := router.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	// router panics on malformed or conflicting patterns.
	defer func() {
		if p := recover(); p != nil {
			g, err = nil, fmt.Errorf("guard: %v", p)
		}
	}()
	for _, rule := range rules {
		rule := rule
		r.GET(pattern(rule.Path), func(ctx *fasthttp.RequestCtx) {
			ctx.SetUserValue(ruleKey, rule)
		})
	}
	return &Guard{router: r}, nil
}

// Default returns a guard over DefaultRules.
func Default() *Guard {
	g, err := New(DefaultRules)
	if err != nil {
		panic(err)
	}
	return g
}

func pattern(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			segments[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}

// Check decides access to path for sess, which may be nil.
func (g *Guard) Check(sess *domain.Session, path string) Decision {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		path = HomeRoute
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}

	ctx := &fasthttp.RequestCtx{}
	handler, _ := g.router.Lookup(http.MethodGet, path, ctx)
	if handler == nil {
		return Decision{NotFound: true}
	}
	handler(ctx)
	rule, _ := ctx.UserValue(ruleKey).(Rule)

	params := make(map[string]string)
	ctx.VisitUserValues(func(key []byte, value interface{}) {
		if s, ok := value.(string); ok {
			params[string(key)] = s
		}
	})

	d := Decision{Rule: rule, Params: params}
	switch {
	case rule.Public:
		d.Allowed = true
	case sess == nil || sess.AccessToken == "":
		d.Redirect = LoginRoute
	case !sess.HasRole(rule.Roles...):
		d.Redirect = HomeRoute
	default:
		d.Allowed = true
	}
	return d
}
