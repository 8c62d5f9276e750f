package httpcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/classroom/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// Adapter prepares outbound fasthttp requests: it assigns a request ID and
// resolves the deadline a round trip must respect.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		timeout: timeout,
	}
}

// Attach stamps req with a request ID (reusing the one already in ctx) and
// returns the enriched context plus the deadline for the round trip.
func (a *Adapter) Attach(ctx context.Context, req *fasthttp.Request) (context.Context, time.Time) {
	if ctx == nil {
		ctx = context.Background()
	}

	reqID := appLogger.RequestID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
		ctx = appLogger.ContextWithRequestID(ctx, reqID)
	}
	if req != nil {
		req.Header.Set(HeaderRequestID, reqID)
	}

	return ctx, a.Deadline(ctx)
}

// Deadline returns the earlier of the context deadline and now+timeout.
func (a *Adapter) Deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(a.timeout)
	if ctx != nil {
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			return d
		}
	}
	return deadline
}

// Timeout exposes the configured per-request timeout.
func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}
