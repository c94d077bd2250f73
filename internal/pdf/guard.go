package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/a3tai/mcp-pdf-layout/internal/logging"
)

// DefaultBackendTimeout bounds a single backend call.
const DefaultBackendTimeout = 30 * time.Second

const maxPanicRecords = 10

// PanicRecord describes a recovered backend panic.
type PanicRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace"`
}

// Guard runs backend calls with panic recovery and a deadline. The PDF
// libraries panic on some malformed input; a guarded call turns that into an
// error instead of taking the server down.
type Guard struct {
	timeout time.Duration

	mu     sync.Mutex
	panics []PanicRecord
}

// NewGuard creates a guard. A non-positive timeout uses
// DefaultBackendTimeout.
func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	return &Guard{timeout: timeout}
}

// Timeout returns the per-call deadline.
func (g *Guard) Timeout() time.Duration {
	return g.timeout
}

// Panics returns the most recent recovered panics, oldest first.
func (g *Guard) Panics() []PanicRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PanicRecord, len(g.panics))
	copy(out, g.panics)
	return out
}

func (g *Guard) record(op string, r any) {
	rec := PanicRecord{
		Timestamp:  time.Now(),
		Operation:  op,
		Message:    fmt.Sprint(r),
		StackTrace: string(debug.Stack()),
	}
	g.mu.Lock()
	g.panics = append(g.panics, rec)
	if len(g.panics) > maxPanicRecords {
		g.panics = g.panics[len(g.panics)-maxPanicRecords:]
	}
	g.mu.Unlock()

	logging.Logger().Error("backend panic recovered",
		slog.String("operation", op),
		slog.String("panic", rec.Message))
}

// Guarded runs fn under g. fn receives a context that ends at the guard's
// deadline. If the caller's ctx is cancelled the call returns ctx.Err()
// immediately; fn keeps running in the background until it notices.
func Guarded[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.record(op, r)
				done <- result{err: fmt.Errorf("%s panicked: %v", op, r)}
			}
		}()
		v, err := fn(timeoutCtx)
		done <- result{val: v, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-timeoutCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%s timed out after %v: %w", op, g.timeout, context.DeadlineExceeded)
	}
}
