// Package monitor probes the API and the session backend the client depends on.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	apiTimeout     = 3 * time.Second
	sessionTimeout = 2 * time.Second
)

// Doer sends the health probe; *fasthttp.Client satisfies it.
type Doer interface {
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sizer reports how many entries a cache holds.
type Sizer interface {
	Len() int
}

type Config struct {
	BaseURL  string
	Backend  string
	Interval time.Duration
}

type Monitor struct {
	doer      Doer
	healthURL string
	session   Pinger
	cache     Sizer
	backend   string
	interval  time.Duration
	logger    *zap.Logger

	status Status
	mu     sync.RWMutex

	stopCh  chan struct{}
	once    sync.Once
	started atomic.Bool
	done    chan struct{}
}

func New(cfg Config, doer Doer, session Pinger, cache Sizer, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		doer:      doer,
		healthURL: HealthURL(cfg.BaseURL),
		session:   session,
		cache:     cache,
		backend:   cfg.Backend,
		interval:  cfg.Interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// HealthURL maps an API base URL such as http://host/api/v1 to http://host/health.
func HealthURL(baseURL string) string {
	uri := fasthttp.AcquireURI()
	defer fasthttp.ReleaseURI(uri)
	if err := uri.Parse(nil, []byte(baseURL)); err != nil {
		return ""
	}
	uri.SetPath("/health")
	uri.SetQueryString("")
	return uri.String()
}

// Check probes every dependency once and stores the result.
func (m *Monitor) Check(ctx context.Context) Status {
	status := Status{Backend: m.backend}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		err := m.checkAPI(gctx)
		status.APILatency = time.Since(start)
		status.API = err == nil
		if err != nil {
			status.APIError = err.Error()
		}
		return nil
	})
	g.Go(func() error {
		err := m.checkSession(gctx)
		status.Session = err == nil
		if err != nil {
			status.SessionError = err.Error()
		}
		return nil
	})
	_ = g.Wait()

	if m.cache != nil {
		status.CacheEntries = m.cache.Len()
	}
	status.LastCheck = time.Now()

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	if !status.Online() {
		m.logger.Warn("dependency offline",
			zap.Bool("api", status.API),
			zap.Bool("session", status.Session),
			zap.String("backend", status.Backend),
		)
	}
	return status
}

func (m *Monitor) checkAPI(ctx context.Context) error {
	if m.doer == nil || m.healthURL == "" {
		return fmt.Errorf("api probe not configured")
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(m.healthURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline := time.Now().Add(apiTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := m.doer.DoDeadline(req, resp, deadline); err != nil {
		return err
	}
	if code := resp.StatusCode(); code >= fasthttp.StatusInternalServerError {
		return fmt.Errorf("health returned %d", code)
	}
	return nil
}

func (m *Monitor) checkSession(ctx context.Context) error {
	if m.session == nil {
		return fmt.Errorf("session backend not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()
	return m.session.Ping(ctx)
}

// Start probes on every interval until Stop.
func (m *Monitor) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.loop()
	}
}

// Stop ends the loop started by Start and waits for it.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	if m.started.Load() {
		<-m.done
	}
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) IsOnline() bool {
	return m.GetStatus().Online()
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.Check(ctx)
	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-m.stopCh:
			return
		}
	}
}
