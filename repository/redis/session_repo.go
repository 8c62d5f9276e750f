package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/repository"
)

type sessionRepository struct {
	client *redislib.Client
	prefix string
	key    string
	ttl    time.Duration
	codec  repository.Codec
}

// NewSessionRepository creates a Redis-backed session repository, for clients
// that share one session across machines. key names the record, e.g. a profile name.
func NewSessionRepository(client *redislib.Client, key string, ttl time.Duration, codec repository.Codec) repository.SessionRepository {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if key == "" {
		key = "user"
	}
	if codec == nil {
		codec = repository.JSONCodec
	}
	return &sessionRepository{
		client: client,
		prefix: "classroom:session:",
		key:    key,
		ttl:    ttl,
		codec:  codec,
	}
}

func (r *sessionRepository) Load(ctx context.Context) (*domain.Session, error) {
	result, err := r.client.Get(ctx, r.redisKey()).Result()
	return r.decode(result, err)
}

// decode maps a missing key to "no session".
func (r *sessionRepository) decode(result string, err error) (*domain.Session, error) {
	if errors.Is(err, redislib.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.codec.Decode([]byte(result))
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	payload, err := r.codec.Encode(session)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.redisKey(), payload, r.ttl).Err()
}

func (r *sessionRepository) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.redisKey()).Err()
}

func (r *sessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *sessionRepository) redisKey() string {
	return fmt.Sprintf("%s%s", r.prefix, r.key)
}
