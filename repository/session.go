package repository

import (
	"context"

	"github.com/fastygo/classroom/domain"
)

// SessionRepository persists the single session record of this client.
// Load returns (nil, nil) when nothing is stored.
type SessionRepository interface {
	Load(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}
