package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Output: &buf})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, log.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Contains(t, entry, "timestamp")

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestDefaultLevelIsWarn(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Encoding: "console", Output: &buf})
	require.NoError(t, err)

	log.Info("quiet")
	assert.Empty(t, buf.String())
	log.Warn("loud")
	assert.Contains(t, buf.String(), "WARN")
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base, err := New(Config{Level: "debug", Output: &buf})
	require.NoError(t, err)

	assert.Same(t, base, WithRequestID(context.Background(), base))

	ctx := ContextWithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))
	WithRequestID(ctx, base).Info("call")
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}
