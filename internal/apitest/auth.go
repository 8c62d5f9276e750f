package apitest

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
)

type claims struct {
	Role       domain.Role `json:"role"`
	Generation int         `json:"gen"`
	jwt.RegisteredClaims
}

type handler func(ctx *fasthttp.RequestCtx, user domain.User)

// SeedUser registers an account directly.
func (s *Server) SeedUser(name, email, password string, role domain.Role) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccountLocked(name, email, password, role)
}

// IssueSession mints tokens for an existing user as a login would.
func (s *Server) IssueSession(user domain.User) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.Session{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role,
		AccessToken:  s.issueAccessLocked(user),
		RefreshToken: s.issueRefreshLocked(user.ID),
	}
}

func (s *Server) addAccountLocked(name, email, password string, role domain.Role) domain.User {
	user := domain.User{ID: uuid.NewString(), Name: name, Email: strings.ToLower(email), Role: role}
	s.accounts[user.ID] = &account{user: user, password: password}
	s.emails[user.Email] = user.ID
	return user
}

func (s *Server) issueAccessLocked(user domain.User) string {
	now := time.Now()
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role:       user.Role,
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}).SignedString(s.secret)
	return token
}

func (s *Server) issueRefreshLocked(userID string) string {
	token := uuid.NewString()
	s.refreshTokens[token] = userID
	return token
}

func (s *Server) authed(h handler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		header := string(ctx.Request.Header.Peek("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			s.fail(ctx, fasthttp.StatusUnauthorized, "You are not authorized")
			return
		}

		var c claims
		parsed, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), &c, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.secret, nil
		})
		if err != nil || !parsed.Valid {
			s.fail(ctx, fasthttp.StatusUnauthorized, "jwt expired")
			return
		}

		s.mu.Lock()
		acc, ok := s.accounts[c.Subject]
		current := s.generation
		s.mu.Unlock()
		if !ok || c.Generation != current {
			s.fail(ctx, fasthttp.StatusUnauthorized, "jwt expired")
			return
		}
		h(ctx, acc.user)
	}
}

func (s *Server) setRefreshCookie(ctx *fasthttp.RequestCtx, token string) {
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(RefreshCookie)
	cookie.SetValue(token)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	ctx.Response.Header.SetCookie(cookie)
}

func (s *Server) login(ctx *fasthttp.RequestCtx) {
	var req transport.LoginRequest
	if !decodeBody(ctx, &req) {
		s.fail(ctx, fasthttp.StatusBadRequest, "invalid payload")
		return
	}

	s.mu.Lock()
	var acc *account
	if id, ok := s.emails[strings.ToLower(req.Email)]; ok {
		acc = s.accounts[id]
	}
	if acc == nil || acc.password != req.Password {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusUnauthorized, "Invalid email or password")
		return
	}
	access := s.issueAccessLocked(acc.user)
	refresh := s.issueRefreshLocked(acc.user.ID)
	inBody := s.refreshInBody
	minimal := s.minimalLogin
	s.mu.Unlock()

	s.setRefreshCookie(ctx, refresh)
	resp := transport.LoginResponse{
		ID:          acc.user.ID,
		Name:        acc.user.Name,
		Email:       acc.user.Email,
		Role:        acc.user.Role,
		AccessToken: access,
	}
	if inBody {
		resp.RefreshToken = refresh
	}
	if minimal {
		resp.ID, resp.Email = "", ""
	}
	s.respond(ctx, fasthttp.StatusOK, "User logged in successfully", resp)
}

func (s *Server) register(ctx *fasthttp.RequestCtx) {
	var req transport.RegisterRequest
	if !decodeBody(ctx, &req) || req.Email == "" || !req.Role.Valid() {
		s.fail(ctx, fasthttp.StatusBadRequest, "invalid payload")
		return
	}

	s.mu.Lock()
	if _, exists := s.emails[strings.ToLower(req.Email)]; exists {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusConflict, "User already exists")
		return
	}
	user := s.addAccountLocked(req.Name, req.Email, req.Password, req.Role)
	s.mu.Unlock()

	s.respond(ctx, fasthttp.StatusCreated, "User registered successfully", user)
}

func (s *Server) refresh(ctx *fasthttp.RequestCtx) {
	s.mu.Lock()
	s.refreshCalls++
	failing := s.failRefresh
	s.mu.Unlock()
	if failing {
		s.fail(ctx, fasthttp.StatusUnauthorized, "Refresh token expired")
		return
	}

	token := string(ctx.Request.Header.Cookie(RefreshCookie))
	if token == "" {
		var body transport.RefreshRequest
		_ = decodeBody(ctx, &body)
		token = body.RefreshToken
	}

	s.mu.Lock()
	userID, ok := s.refreshTokens[token]
	if !ok {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(s.refreshTokens, token)
	acc := s.accounts[userID]
	access := s.issueAccessLocked(acc.user)
	rotated := s.issueRefreshLocked(userID)
	inBody := s.refreshInBody
	s.mu.Unlock()

	s.setRefreshCookie(ctx, rotated)
	resp := transport.RefreshResponse{AccessToken: access}
	if inBody {
		resp.RefreshToken = rotated
	}
	// The refresh endpoint always answers with the envelope.
	body := transport.NewSuccess(fasthttp.StatusOK, "Access token refreshed", resp)
	s.writeJSON(ctx, fasthttp.StatusOK, body)
}

func (s *Server) me(ctx *fasthttp.RequestCtx, user domain.User) {
	s.respond(ctx, fasthttp.StatusOK, "User retrieved", user)
}
