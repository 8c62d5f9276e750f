package query

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T) (*Cache, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(Config{}, nil)
	c.now = clk.Now
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, clk
}

type counter struct {
	calls atomic.Int32
}

func (c *counter) fetch(value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n := c.calls.Add(1)
		return fmt.Sprintf("%s-%d", value, n), nil
	}
}

func TestKey(t *testing.T) {
	assert.True(t, KeyClassDetail("c1").Enabled())
	assert.False(t, KeyClassDetail("").Enabled())
	assert.False(t, Key{}.Enabled())
	assert.Equal(t, "assignments/byClass/c1", KeyAssignmentsByClass("c1").String())
	assert.Equal(t, Key{"assignments", "teacher", "all"}, KeyTeacherAssignments(""))

	assert.True(t, KeyAssignmentsByClass("c1").HasPrefix(KeyAssignments))
	assert.True(t, KeyAssignmentsByClass("c1").HasPrefix(Key{}))
	assert.False(t, KeyAssignmentsByClass("c1").HasPrefix(KeyAssignmentsByClass("c2")))
	assert.False(t, KeyAssignments.HasPrefix(KeyAssignmentsByClass("c1")))
	assert.Equal(t, Key{"assignments", "byClass"}, KeyAssignmentsByClass("").trim())
}

func TestFetchFreshServesCache(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()
	var n counter

	v, err := Fetch(ctx, c, KeyMyClasses(), Options{StaleTime: StaleClasses}, n.fetch("classes"))
	require.NoError(t, err)
	assert.Equal(t, "classes-1", v)

	clk.Advance(StaleClasses - time.Second)
	v, err = Fetch(ctx, c, KeyMyClasses(), Options{StaleTime: StaleClasses}, n.fetch("classes"))
	require.NoError(t, err)
	assert.Equal(t, "classes-1", v)
	assert.EqualValues(t, 1, n.calls.Load())
	assert.Equal(t, StateFresh, c.State(KeyMyClasses()))
}

func TestFetchStaleRefetchesInBackground(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()
	var n counter
	opts := Options{StaleTime: StaleDashboard}

	_, err := Fetch(ctx, c, KeyDashboardStats(), opts, n.fetch("stats"))
	require.NoError(t, err)

	clk.Advance(StaleDashboard)
	assert.Equal(t, StateStale, c.State(KeyDashboardStats()))

	v, err := Fetch(ctx, c, KeyDashboardStats(), opts, n.fetch("stats"))
	require.NoError(t, err)
	assert.Equal(t, "stats-1", v, "stale data is served while refetching")

	assert.Eventually(t, func() bool {
		got, ok := Get[string](c, KeyDashboardStats())
		return ok && got == "stats-2"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateFresh, c.State(KeyDashboardStats()))
}

func TestInvalidateForcesSynchronousRefetch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var n counter

	_, err := Fetch(ctx, c, KeyAssignmentsByClass("c1"), Options{}, n.fetch("list"))
	require.NoError(t, err)

	assert.Equal(t, 1, c.Invalidate(KeyAssignments))
	assert.Equal(t, StateInvalidated, c.State(KeyAssignmentsByClass("c1")))

	v, err := Fetch(ctx, c, KeyAssignmentsByClass("c1"), Options{}, n.fetch("list"))
	require.NoError(t, err)
	assert.Equal(t, "list-2", v)
}

func TestDisabledKeyNeverFetches(t *testing.T) {
	c, _ := newTestCache(t)
	var n counter

	_, err := Fetch(context.Background(), c, KeyClassDetail(""), Options{}, n.fetch("class"))
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, Prefetch(context.Background(), c, KeyAssignmentDetail(""), Options{}, n.fetch("a")), ErrDisabled)
	assert.EqualValues(t, 0, n.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentFetchesShareOneCall(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "me", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Fetch(context.Background(), c, KeyMe(), Options{}, fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, "me", r)
	}
}

func TestFetchStartedBeforeInvalidationIsNotFresh(t *testing.T) {
	c, _ := newTestCache(t)
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		close(started)
		<-release
		return "old", nil
	}

	done := make(chan string)
	go func() {
		v, _ := Fetch(context.Background(), c, KeySubmissionsByAssignment("a1"), Options{}, fn)
		done <- v
	}()
	<-started
	c.Invalidate(KeySubmissions)
	close(release)

	assert.Equal(t, "old", <-done)
	assert.NotEqual(t, StateFresh, c.State(KeySubmissionsByAssignment("a1")))
}

func TestClearDropsInFlightResults(t *testing.T) {
	c, _ := newTestCache(t)
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		close(started)
		<-release
		return "previous user", nil
	}

	done := make(chan struct{})
	go func() {
		_, _ = Fetch(context.Background(), c, KeyMe(), Options{}, fn)
		close(done)
	}()
	<-started
	c.Clear()
	close(release)
	<-done

	_, ok := Get[string](c, KeyMe())
	assert.False(t, ok)
}

func TestCancelledWaiterDoesNotCancelFetch(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		_, err := Fetch(ctx, c, KeyMe(), Options{}, fn)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool {
		v, ok := Get[string](c, KeyMe())
		return ok && v == "done"
	}, time.Second, 5*time.Millisecond)
}

func TestQueryRetryPolicy(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int32
	}{
		{name: "server error", err: statusErr(http.StatusServiceUnavailable), calls: 4},
		{name: "network error", err: errors.New("connection reset"), calls: 4},
		{name: "not found", err: statusErr(http.StatusNotFound), calls: 1},
		{name: "forbidden", err: statusErr(http.StatusForbidden), calls: 1},
		{name: "too many requests", err: statusErr(http.StatusTooManyRequests), calls: 3},
		{name: "request timeout", err: statusErr(http.StatusRequestTimeout), calls: 3},
		{name: "cancelled", err: context.Canceled, calls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCache(t)
			var calls atomic.Int32
			_, err := Fetch(context.Background(), c, KeyMyClasses(), Options{}, func(context.Context) (string, error) {
				calls.Add(1)
				return "", tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	v, err := Fetch(context.Background(), c, KeyDashboardStats(), Options{}, func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", statusErr(http.StatusBadGateway)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.EqualValues(t, 3, calls.Load())
}

func TestSkipStatus(t *testing.T) {
	p := SkipStatus(QueryRetry(3), http.StatusNotFound)
	assert.False(t, p(0, statusErr(http.StatusNotFound)))
	assert.True(t, p(0, statusErr(http.StatusInternalServerError)))
	assert.True(t, RetryOnce(0, errors.New("timeout")))
	assert.False(t, RetryOnce(1, errors.New("timeout")))
	assert.False(t, NoRetry(0, errors.New("timeout")))
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second}
	for retry := 0; retry < 40; retry++ {
		d := b.Delay(retry)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.LessOrEqual(t, b.Delay(0), 100*time.Millisecond)
	assert.Equal(t, time.Duration(0), Backoff{}.Delay(3))
}

func TestRetryStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Retry(ctx, QueryRetry(3), Backoff{Base: time.Hour, Max: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return statusErr(http.StatusInternalServerError)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestMutateRetriesAndSettles(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		calls       int32
		invalidated bool
	}{
		{name: "success", calls: 1, invalidated: true},
		{name: "bad request", err: statusErr(http.StatusBadRequest), calls: 1},
		{name: "conflict", err: statusErr(http.StatusConflict), calls: 1},
		{name: "server error", err: statusErr(http.StatusInternalServerError), calls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCache(t)
			c.SetData(KeyMyClasses(), "before")

			var calls atomic.Int32
			_, err := Mutate(context.Background(), c, MutationJoinClass, Vars{}, func(context.Context) (string, error) {
				calls.Add(1)
				return "joined", tt.err
			})
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.calls, calls.Load())
			assert.Equal(t, tt.invalidated, c.State(KeyMyClasses()) == StateInvalidated)
		})
	}
}

func TestSettleGraph(t *testing.T) {
	all := []Key{
		KeyMe(),
		KeyMyClasses(),
		KeyClassDetail("c1"),
		KeyAssignmentsByClass("c1"),
		KeyAssignmentsByClass("c2"),
		KeyAssignmentDetail("a1"),
		KeyAssignmentDetail("a2"),
		KeyTeacherAssignments(""),
		KeySubmissionsByAssignment("a1"),
		KeySubmissionsByAssignment("a2"),
		KeyMySubmission("a1"),
		KeyMySubmission("a2"),
		KeyDashboardStats(),
	}
	tests := []struct {
		mutation Mutation
		vars     Vars
		want     []Key
	}{
		{mutation: MutationLogin, want: []Key{KeyMe()}},
		{mutation: MutationCreateClass, want: []Key{KeyMyClasses(), KeyClassDetail("c1")}},
		{mutation: MutationJoinClass, want: []Key{KeyMyClasses(), KeyClassDetail("c1")}},
		{
			mutation: MutationCreateAssignment,
			vars:     Vars{ClassID: "c1"},
			want:     []Key{KeyAssignmentsByClass("c1"), KeyTeacherAssignments(""), KeyDashboardStats()},
		},
		{
			mutation: MutationUpdateAssignment,
			vars:     Vars{AssignmentID: "a1"},
			want: []Key{
				KeyAssignmentsByClass("c1"), KeyAssignmentsByClass("c2"),
				KeyAssignmentDetail("a1"), KeyAssignmentDetail("a2"),
				KeyTeacherAssignments(""), KeyDashboardStats(),
			},
		},
		{
			mutation: MutationSubmitAssignment,
			vars:     Vars{AssignmentID: "a1"},
			want:     []Key{KeyAssignmentDetail("a1"), KeySubmissionsByAssignment("a1"), KeyMySubmission("a1"), KeyDashboardStats()},
		},
		{
			mutation: MutationGradeSubmission,
			vars:     Vars{AssignmentID: "a1"},
			want:     []Key{KeySubmissionsByAssignment("a1"), KeyDashboardStats()},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.mutation), func(t *testing.T) {
			c, _ := newTestCache(t)
			for _, k := range all {
				c.SetData(k, k.String())
			}

			assert.Equal(t, len(tt.want), c.Settle(tt.mutation, tt.vars))
			for _, k := range tt.want {
				assert.Equal(t, StateInvalidated, c.State(k), k.String())
			}
		})
	}
}

func TestCreateAssignmentWithoutClassWidensPrefix(t *testing.T) {
	c, _ := newTestCache(t)
	c.SetData(KeyAssignmentsByClass("c1"), "x")
	c.SetData(KeyAssignmentsByClass("c2"), "y")

	assert.Equal(t, 2, c.Invalidate(KeyAssignmentsByClass("")))
}

func TestCollect(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()
	var n counter

	_, err := Fetch(ctx, c, KeyMyClasses(), Options{}, n.fetch("old"))
	require.NoError(t, err)
	clk.Advance(DefaultGCTime / 2)
	_, err = Fetch(ctx, c, KeyDashboardStats(), Options{}, n.fetch("new"))
	require.NoError(t, err)

	clk.Advance(DefaultGCTime/2 + time.Second)
	assert.Equal(t, 1, c.Collect())
	assert.Equal(t, StateMissing, c.State(KeyMyClasses()))
	assert.Equal(t, 1, c.Len())
}

func TestJanitor(t *testing.T) {
	c, clk := newTestCache(t)
	c.SetData(KeyMe(), "me")
	clk.Advance(DefaultGCTime + time.Second)

	j, err := NewJanitor(c, time.Minute, nil)
	require.NoError(t, err)
	j.Start()
	j.Sweep()
	assert.Equal(t, 0, c.Len())
	assert.NoError(t, j.Stop(context.Background()))
}

func TestPrefetch(t *testing.T) {
	c, _ := newTestCache(t)
	var n counter
	opts := Options{StaleTime: StaleClassDetail}

	require.NoError(t, Prefetch(context.Background(), c, KeyClassDetail("c1"), opts, n.fetch("class")))
	require.NoError(t, Prefetch(context.Background(), c, KeyClassDetail("c1"), opts, n.fetch("class")))
	assert.EqualValues(t, 1, n.calls.Load())

	v, ok := Get[string](c, KeyClassDetail("c1"))
	assert.True(t, ok)
	assert.Equal(t, "class-1", v)
}
