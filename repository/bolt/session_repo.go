package bolt

import (
	"context"

	"github.com/fastygo/classroom/domain"
	boltInfra "github.com/fastygo/classroom/internal/infrastructure/bolt"
	"github.com/fastygo/classroom/repository"
)

type sessionRepository struct {
	store *boltInfra.Store
	key   string
	codec repository.Codec
}

// NewSessionRepository creates a repository keeping the session in a local
// Bolt file. A nil codec stores plain JSON.
func NewSessionRepository(store *boltInfra.Store, key string, codec repository.Codec) repository.SessionRepository {
	if key == "" {
		key = "user"
	}
	if codec == nil {
		codec = repository.JSONCodec
	}
	return &sessionRepository{store: store, key: key, codec: codec}
}

func (r *sessionRepository) Load(ctx context.Context) (*domain.Session, error) {
	raw, err := r.store.Get(r.key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return r.codec.Decode(raw)
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	payload, err := r.codec.Encode(session)
	if err != nil {
		return err
	}
	return r.store.Put(r.key, payload)
}

func (r *sessionRepository) Clear(ctx context.Context) error {
	return r.store.Delete(r.key)
}

func (r *sessionRepository) Ping(ctx context.Context) error {
	_, err := r.store.Size()
	return err
}
