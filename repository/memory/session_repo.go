package memory

import (
	"context"
	"sync"

	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/repository"
)

// SessionRepository keeps the session in process memory. It backs tests and
// SESSION_BACKEND=memory, where nothing should survive the process.
type SessionRepository struct {
	mu      sync.RWMutex
	session *domain.Session
	saves   int
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{}
}

func (r *SessionRepository) Load(ctx context.Context) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session.Clone(), nil
}

func (r *SessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = session.Clone()
	r.saves++
	return nil
}

func (r *SessionRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = nil
	return nil
}

func (r *SessionRepository) Ping(ctx context.Context) error { return nil }

// Saves returns how many times Save succeeded.
func (r *SessionRepository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
