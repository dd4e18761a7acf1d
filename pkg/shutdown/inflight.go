package shutdown

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// InFlightTracker tracks background work so shutdown can wait for it.
// Once Shutdown starts, new work is refused.
type InFlightTracker struct {
	mu           sync.Mutex
	wg           sync.WaitGroup
	shuttingDown bool
	logger       *zap.Logger
	name         string
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{
		logger: logger,
		name:   name,
	}
}

// Add registers one unit of work. Returns false once shutdown has started.
func (ift *InFlightTracker) Add() bool {
	ift.mu.Lock()
	defer ift.mu.Unlock()

	if ift.shuttingDown {
		return false
	}
	ift.wg.Add(1)
	return true
}

// Done marks one unit of work complete
func (ift *InFlightTracker) Done() {
	ift.wg.Done()
}

// Go runs fn on its own goroutine as tracked work.
// Returns false without running fn when shutdown is in progress.
func (ift *InFlightTracker) Go(fn func()) bool {
	if !ift.Add() {
		ift.logger.Warn("Rejected background work during shutdown",
			zap.String("tracker", ift.name),
		)
		return false
	}

	go func() {
		defer ift.Done()
		fn()
	}()
	return true
}

// Wait blocks until all tracked work completes or ctx ends
func (ift *InFlightTracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ift.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown refuses new work and waits for in-flight work to finish
func (ift *InFlightTracker) Shutdown(ctx context.Context) error {
	ift.mu.Lock()
	ift.shuttingDown = true
	ift.mu.Unlock()

	ift.logger.Info("Waiting for in-flight work to complete",
		zap.String("tracker", ift.name),
	)

	if err := ift.Wait(ctx); err != nil {
		ift.logger.Warn("Shutdown timeout - some work may be incomplete",
			zap.String("tracker", ift.name),
		)
		return err
	}

	ift.logger.Info("All in-flight work completed",
		zap.String("tracker", ift.name),
	)
	return nil
}

// IsShuttingDown returns true if shutdown has been initiated
func (ift *InFlightTracker) IsShuttingDown() bool {
	ift.mu.Lock()
	defer ift.mu.Unlock()
	return ift.shuttingDown
}
