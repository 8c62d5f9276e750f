// Package query is the server-state cache: keyed query results with per-entity
// staleness windows, de-duplicated fetches and prefix invalidation driven by mutations.
package query

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fastygo/classroom/domain"
)

// ErrDisabled is returned without any fetch when a key lacks an identifying parameter.
var ErrDisabled = domain.NewError(domain.ErrCodeInvalid, "query disabled: missing key parameter")

// State describes a cache entry as seen by the next read.
type State int

const (
	StateMissing State = iota
	StateFresh
	StateStale
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateInvalidated:
		return "invalidated"
	default:
		return "missing"
	}
}

type Config struct {
	DefaultStale  time.Duration
	GCTime        time.Duration
	QueryRetry    RetryPolicy
	MutationRetry RetryPolicy
	Backoff       Backoff
}

// Options tune a single query. Zero values fall back to the cache config.
type Options struct {
	StaleTime time.Duration
	Retry     RetryPolicy
}

type entry struct {
	key        Key
	data       interface{}
	hasData    bool
	updatedAt  time.Time
	lastAccess time.Time
	staleTime  time.Duration
	// invalidated entries are refetched synchronously on the next read.
	invalidated bool
	// generation changes on every invalidation so older fetches cannot land.
	generation uint64
}

type fetchFunc func(ctx context.Context) (interface{}, error)

// Cache holds query results keyed by Key.
type Cache struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	entries    map[string]*entry
	generation uint64
	closed     bool

	flights singleflight.Group
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger) *Cache {
	if cfg.DefaultStale <= 0 {
		cfg.DefaultStale = DefaultStaleTime
	}
	if cfg.GCTime <= 0 {
		cfg.GCTime = DefaultGCTime
	}
	if cfg.QueryRetry == nil {
		cfg.QueryRetry = QueryRetry(3)
	}
	if cfg.MutationRetry == nil {
		cfg.MutationRetry = MutationRetry(2)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Fetch returns the cached value for key, calling fn when there is none or it
// was invalidated. A stale value is returned as is while fn refreshes it in
// the background. Concurrent fetches of the same key share one call to fn.
func Fetch[T any](ctx context.Context, c *Cache, key Key, opts Options, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.fetch(ctx, key, opts, wrap(fn))
	if err != nil {
		return zero, err
	}
	return cast[T](key, v)
}

// Prefetch loads key unless a fresh value is already cached.
func Prefetch[T any](ctx context.Context, c *Cache, key Key, opts Options, fn func(context.Context) (T, error)) error {
	if !key.Enabled() {
		return ErrDisabled
	}
	opts = c.options(opts)
	state, _, gen := c.lookup(key, opts)
	if state == StateFresh {
		return nil
	}
	_, err := c.load(ctx, key, gen, opts, wrap(fn))
	return err
}

// Get returns the cached value for key without fetching.
func Get[T any](c *Cache, key Key) (T, bool) {
	var zero T
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	var data interface{}
	if ok && e.hasData {
		data = e.data
	}
	c.mu.Unlock()
	if data == nil {
		return zero, false
	}
	v, err := cast[T](key, data)
	return v, err == nil
}

func wrap[T any](fn func(context.Context) (T, error)) fetchFunc {
	return func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	}
}

func cast[T any](key Key, v interface{}) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("query %s: cached %T, want %T", key, v, zero)
	}
	return out, nil
}

func (c *Cache) options(opts Options) Options {
	if opts.StaleTime <= 0 {
		opts.StaleTime = c.cfg.DefaultStale
	}
	if opts.Retry == nil {
		opts.Retry = c.cfg.QueryRetry
	}
	return opts
}

func (c *Cache) fetch(ctx context.Context, key Key, opts Options, fn fetchFunc) (interface{}, error) {
	if !key.Enabled() {
		return nil, ErrDisabled
	}
	opts = c.options(opts)

	state, data, gen := c.lookup(key, opts)
	switch state {
	case StateFresh:
		return data, nil
	case StateStale:
		c.background(key, gen, opts, fn)
		return data, nil
	default:
		return c.load(ctx, key, gen, opts, fn)
	}
}

// lookup creates the entry if needed, records the access and classifies it.
func (c *Cache) lookup(key Key, opts Options) (State, interface{}, uint64) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...), generation: c.nextGenerationLocked()}
		c.entries[id] = e
	}
	e.lastAccess = now
	e.staleTime = opts.StaleTime
	return e.stateAt(now), e.data, e.generation
}

func (e *entry) stateAt(now time.Time) State {
	switch {
	case !e.hasData:
		return StateMissing
	case e.invalidated:
		return StateInvalidated
	case now.Sub(e.updatedAt) >= e.staleTime:
		return StateStale
	default:
		return StateFresh
	}
}

func (c *Cache) nextGenerationLocked() uint64 {
	c.generation++
	return c.generation
}

func (c *Cache) load(ctx context.Context, key Key, gen uint64, opts Options, fn fetchFunc) (interface{}, error) {
	flight := key.String() + "@" + strconv.FormatUint(gen, 10)
	ch := c.flights.DoChan(flight, func() (interface{}, error) {
		// Waiters may leave; the fetch continues for the others until the cache closes.
		runCtx, cancel := c.detach(ctx)
		defer cancel()
		return c.run(runCtx, key, gen, opts, fn)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (c *Cache) run(ctx context.Context, key Key, gen uint64, opts Options, fn fetchFunc) (interface{}, error) {
	var data interface{}
	err := Retry(ctx, opts.Retry, c.cfg.Backoff, func(ctx context.Context) error {
		var err error
		data, err = fn(ctx)
		return err
	})
	if err != nil {
		c.logger.Debug("query failed", zap.String("key", key.String()), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	if e, ok := c.entries[key.String()]; ok && e.generation == gen {
		e.data = data
		e.hasData = true
		e.updatedAt = c.now()
		e.invalidated = false
	}
	c.mu.Unlock()
	return data, nil
}

func (c *Cache) background(key Key, gen uint64, opts Options, fn fetchFunc) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if _, err := c.load(c.ctx, key, gen, opts, fn); err != nil {
			c.logger.Debug("background refetch failed", zap.String("key", key.String()), zap.Error(err))
		}
	}()
}

// SetData stores v under key as freshly fetched.
func (c *Cache) SetData(key Key, v interface{}) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...), staleTime: c.cfg.DefaultStale}
		c.entries[id] = e
	}
	e.data = v
	e.hasData = true
	e.updatedAt = now
	e.lastAccess = now
	e.invalidated = false
	e.generation = c.nextGenerationLocked()
}

// Invalidate marks every entry under any of prefixes for refetch on its next
// read and returns how many entries were affected.
func (c *Cache) Invalidate(prefixes ...Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		for _, p := range prefixes {
			if e.key.HasPrefix(p.trim()) {
				e.invalidated = true
				e.generation = c.nextGenerationLocked()
				n++
				break
			}
		}
	}
	if n > 0 {
		c.logger.Debug("queries invalidated", zap.Int("count", n))
	}
	return n
}

// Clear drops every entry. Fetches already in flight do not repopulate it.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// State reports how the next read of key would be served.
func (c *Cache) State(key Key) State {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return StateMissing
	}
	return e.stateAt(now)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Collect removes entries not read for longer than the GC time.
func (c *Cache) Collect() int {
	cutoff := c.now().Add(-c.cfg.GCTime)
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Close cancels in-flight fetches and waits for background refetches.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
