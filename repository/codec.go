package repository

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/gorilla/securecookie"

	"github.com/fastygo/classroom/domain"
)

// Codec converts the session record to and from the bytes a backend stores.
type Codec interface {
	Encode(session *domain.Session) ([]byte, error)
	Decode(data []byte) (*domain.Session, error)
}

type jsonCodec struct{}

// JSONCodec stores the session as plain JSON.
var JSONCodec Codec = jsonCodec{}

func (jsonCodec) Encode(session *domain.Session) ([]byte, error) {
	if session == nil {
		return nil, domain.ErrInvalidPayload
	}
	return json.Marshal(session)
}

func (jsonCodec) Decode(data []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

const sealedName = "classroom-session"

type sealedCodec struct {
	sc *securecookie.SecureCookie
}

// NewSealedCodec encrypts and authenticates the session with keys derived
// from secret, so tokens are not readable from the stored record.
func NewSealedCodec(secret string) Codec {
	hashKey := sha256.Sum256([]byte("hash:" + secret))
	blockKey := sha256.Sum256([]byte("block:" + secret))
	sc := securecookie.New(hashKey[:], blockKey[:]).
		SetSerializer(securecookie.JSONEncoder{}).
		MaxAge(0).
		MaxLength(0)
	return sealedCodec{sc: sc}
}

func (c sealedCodec) Encode(session *domain.Session) ([]byte, error) {
	if session == nil {
		return nil, domain.ErrInvalidPayload
	}
	value, err := c.sc.Encode(sealedName, session)
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (c sealedCodec) Decode(data []byte) (*domain.Session, error) {
	var session domain.Session
	if err := c.sc.Decode(sealedName, string(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CodecFor returns the sealed codec when secret is set and JSONCodec otherwise.
func CodecFor(secret string) Codec {
	if secret == "" {
		return JSONCodec
	}
	return NewSealedCodec(secret)
}
