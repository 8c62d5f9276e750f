package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/classroom/internal/apitest"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixedLen int

func (n fixedLen) Len() int { return int(n) }

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://localhost:5000/health", HealthURL("http://localhost:5000/api/v1"))
	assert.Equal(t, "https://api.school.test/health", HealthURL("https://api.school.test/api/v1/"))
}

func TestCheckOnline(t *testing.T) {
	api := apitest.New()
	defer api.Close()

	m := New(Config{BaseURL: apitest.BaseURL, Backend: "memory"}, api.Doer(),
		pingFunc(func(context.Context) error { return nil }), fixedLen(3), nil)

	status := m.Check(context.Background())
	assert.True(t, status.Online())
	assert.Equal(t, "memory", status.Backend)
	assert.Equal(t, 3, status.CacheEntries)
	assert.False(t, status.LastCheck.IsZero())
	assert.Equal(t, status, m.GetStatus())
	assert.True(t, m.IsOnline())
}

func TestCheckReportsFailures(t *testing.T) {
	api := apitest.New()
	api.Close()

	m := New(Config{BaseURL: apitest.BaseURL, Backend: "redis"}, api.Doer(),
		pingFunc(func(context.Context) error { return errors.New("connection refused") }), nil, nil)

	status := m.Check(context.Background())
	assert.False(t, status.API)
	assert.NotEmpty(t, status.APIError)
	assert.False(t, status.Session)
	assert.Equal(t, "connection refused", status.SessionError)
	assert.False(t, status.Online())
}

func TestStartStop(t *testing.T) {
	api := apitest.New()
	defer api.Close()

	m := New(Config{BaseURL: apitest.BaseURL, Interval: 10 * time.Millisecond}, api.Doer(),
		pingFunc(func(context.Context) error { return nil }), nil, nil)
	m.Start()
	require.Eventually(t, m.IsOnline, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	New(Config{}, nil, nil, nil, nil).Stop()
}
