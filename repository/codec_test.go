package repository

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/classroom/domain"
)

func TestCodecs(t *testing.T) {
	session := &domain.Session{ID: "u1", Name: "Ada", Role: domain.RoleStudent, AccessToken: "access-secret", RefreshToken: "refresh-secret"}

	tests := []struct {
		name   string
		codec  Codec
		sealed bool
	}{
		{name: "json", codec: CodecFor("")},
		{name: "sealed", codec: CodecFor("correct horse"), sealed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.codec.Encode(session)
			require.NoError(t, err)
			assert.Equal(t, !tt.sealed, bytes.Contains(raw, []byte("access-secret")))

			got, err := tt.codec.Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, session, got)

			_, err = tt.codec.Encode(nil)
			assert.ErrorIs(t, err, domain.ErrInvalidPayload)
		})
	}
}

func TestSealedCodecRejectsOtherSecret(t *testing.T) {
	raw, err := NewSealedCodec("one").Encode(&domain.Session{ID: "u1", AccessToken: "a"})
	require.NoError(t, err)

	_, err = NewSealedCodec("two").Decode(raw)
	assert.Error(t, err)
	_, err = NewSealedCodec("one").Decode([]byte(`{"_id":"u1"}`))
	assert.Error(t, err)
}
