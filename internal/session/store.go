// Package session holds the client's single authenticated identity and keeps
// it in sync with durable storage.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/repository"
)

// LogoutReason explains why a session ended.
type LogoutReason string

const (
	ReasonUser            LogoutReason = "user"
	ReasonRefreshFailed   LogoutReason = "refresh_failed"
	ReasonUnauthorized    LogoutReason = "unauthorized"
	ReasonProfileRejected LogoutReason = "profile_rejected"
)

// Listener is notified after a session has been destroyed.
type Listener func(reason LogoutReason)

// ProfileFetcher loads the current user's profile from the server.
type ProfileFetcher func(ctx context.Context) (*domain.User, error)

// Store is the session service shared by the HTTP client, route guard and use cases.
type Store struct {
	repo   repository.SessionRepository
	logger *zap.Logger

	mu      sync.RWMutex
	current *domain.Session

	listenersMu sync.Mutex
	listeners   []Listener
}

// New builds the store and hydrates it synchronously from the repository, so
// route decisions can be made before any network round trip. An unreadable
// record is discarded and the client starts signed out.
func New(ctx context.Context, repo repository.SessionRepository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Store{repo: repo, logger: logger}

	persisted, err := repo.Load(ctx)
	switch {
	case err != nil:
		logger.Warn("discarding unreadable persisted session", zap.Error(err))
		if clearErr := repo.Clear(ctx); clearErr != nil {
			logger.Warn("failed to clear persisted session", zap.Error(clearErr))
		}
	case persisted != nil && persisted.AccessToken != "":
		s.current = persisted
	}
	return s
}

// Current returns a copy of the active session, or nil.
func (s *Store) Current() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// IsAuthenticated reports whether a session exists.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.AccessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.RefreshToken
}

// Login persists session and makes it active. Requests issued afterwards use its access token.
func (s *Store) Login(ctx context.Context, session *domain.Session) error {
	if session == nil || session.AccessToken == "" {
		return domain.ErrInvalidPayload
	}
	next := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Save(ctx, next); err != nil {
		return err
	}
	s.current = next
	s.logger.Debug("session started", zap.String("user_id", next.ID), zap.String("role", string(next.Role)))
	return nil
}

// Logout clears memory and storage unconditionally. It is idempotent; listeners
// only hear about the transition from signed in to signed out.
func (s *Store) Logout(ctx context.Context, reason LogoutReason) error {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	err := s.repo.Clear(ctx)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("failed to clear persisted session", zap.Error(err))
	}
	if had {
		s.logger.Info("session ended", zap.String("reason", string(reason)))
		s.notify(reason)
	}
	return err
}

// UpdateTokens merges freshly issued tokens into the active session and storage.
// An empty refresh token keeps the stored one.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return domain.ErrInvalidPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.ErrNoSession
	}
	next := s.current.Clone()
	next.AccessToken = accessToken
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// MergeProfile overlays server profile fields while keeping local tokens.
func (s *Store) MergeProfile(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.ErrNoSession
	}
	next := s.current.Clone()
	next.MergeProfile(user)
	if err := s.repo.Save(ctx, next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// RefreshProfile fetches the profile and merges it. A 401/403 ends the session;
// any other failure is logged and leaves the session untouched.
func (s *Store) RefreshProfile(ctx context.Context, fetch ProfileFetcher) (*domain.User, error) {
	if !s.IsAuthenticated() {
		return nil, domain.ErrNoSession
	}
	user, err := fetch(ctx)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeUnauthorized) || domain.IsDomainError(err, domain.ErrCodeForbidden) {
			s.logger.Warn("profile rejected, ending session", zap.Error(err))
			_ = s.Logout(ctx, ReasonProfileRejected)
			return nil, err
		}
		s.logger.Warn("failed to fetch user data", zap.Error(err))
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidResponse
	}
	if err := s.MergeProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// OnLogout registers a listener for session destruction.
func (s *Store) OnLogout(l Listener) {
	if l == nil {
		return
	}
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// AccessExpiry reads the exp claim of the current access token without
// verifying its signature. ok is false when there is no token or no claim.
func (s *Store) AccessExpiry() (time.Time, bool) {
	token := s.AccessToken()
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Ping checks the backing repository.
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Store) notify(reason LogoutReason) {
	s.listenersMu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenersMu.Unlock()
	for _, l := range listeners {
		l(reason)
	}
}
