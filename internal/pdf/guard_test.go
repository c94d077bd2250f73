package pdf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuarded_ReturnsValue(t *testing.T) {
	g := NewGuard(time.Second)
	v, err := Guarded(context.Background(), g, "answer", func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGuarded_RecoversPanic(t *testing.T) {
	g := NewGuard(time.Second)
	_, err := Guarded(context.Background(), g, "render_page", func(context.Context) (int, error) {
		panic("index out of range")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render_page panicked")

	panics := g.Panics()
	require.Len(t, panics, 1)
	assert.Equal(t, "render_page", panics[0].Operation)
	assert.Equal(t, "index out of range", panics[0].Message)
	assert.NotEmpty(t, panics[0].StackTrace)
}

func TestGuarded_Timeout(t *testing.T) {
	g := NewGuard(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	_, err := Guarded(context.Background(), g, "slow", func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "timed out")
}

func TestGuarded_CallerCancel(t *testing.T) {
	g := NewGuard(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Guarded(ctx, g, "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGuard_KeepsRecentPanics(t *testing.T) {
	g := NewGuard(time.Second)
	for i := 0; i < maxPanicRecords+5; i++ {
		_, _ = Guarded(context.Background(), g, "boom", func(context.Context) (int, error) {
			panic(i)
		})
	}
	assert.Len(t, g.Panics(), maxPanicRecords)
	assert.Equal(t, DefaultBackendTimeout, NewGuard(0).Timeout())
}
