package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManager_ShutdownOrderIsLIFO(t *testing.T) {
	sm := NewManager(zaptest.NewLogger(t), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	sm.RegisterNoErr("store", record("store"))
	sm.RegisterNoErr("publisher", record("publisher"))
	sm.RegisterNoErr("http", record("http"))

	errs := sm.Shutdown()
	assert.Empty(t, errs)
	assert.Equal(t, []string{"http", "publisher", "store"}, order)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestManager_CollectsErrors(t *testing.T) {
	sm := NewManager(zaptest.NewLogger(t), time.Second)
	boom := errors.New("close failed")

	sm.RegisterCloser("store", closerFunc(func() error { return boom }))
	sm.RegisterCloser("publisher", closerFunc(func() error { return nil }))

	errs := sm.Shutdown()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs["store"], boom)
}

func TestManager_TimeoutSkipsRemaining(t *testing.T) {
	sm := NewManager(zaptest.NewLogger(t), 20*time.Millisecond)

	called := false
	sm.RegisterNoErr("store", func() { called = true })
	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	errs := sm.Shutdown()
	assert.False(t, called)
	assert.ErrorIs(t, errs["slow"], context.DeadlineExceeded)
	assert.ErrorIs(t, errs["store"], context.DeadlineExceeded)
}

func TestInFlightTracker_WaitsForWork(t *testing.T) {
	tracker := NewInFlightTracker("cleanup", zaptest.NewLogger(t))

	release := make(chan struct{})
	finished := make(chan struct{})
	require.True(t, tracker.Go(func() {
		<-release
		close(finished)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tracker.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, tracker.Shutdown(context.Background()))

	select {
	case <-finished:
	default:
		t.Fatal("work did not finish before Shutdown returned")
	}
}

func TestInFlightTracker_RejectsAfterShutdown(t *testing.T) {
	tracker := NewInFlightTracker("cleanup", zaptest.NewLogger(t))
	require.NoError(t, tracker.Shutdown(context.Background()))

	assert.True(t, tracker.IsShuttingDown())
	assert.False(t, tracker.Add())
	assert.False(t, tracker.Go(func() { t.Error("must not run") }))
}
