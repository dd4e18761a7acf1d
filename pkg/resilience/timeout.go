package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy, outermost first:
//
//	HTTP handler (30s)
//	  ↓
//	Reconciliation (25s)
//	  ↓
//	Gateway call (15s)
//
// Background work that outlives the request has its own budget.
type TimeoutConfig struct {
	HTTPHandler time.Duration // Overall request timeout
	Reconcile   time.Duration // Verify plus store transaction
	Gateway     time.Duration // Single gateway round trip
	Cleanup     time.Duration // Best-effort staged record cleanup
	Publish     time.Duration // Change event delivery
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 30 * time.Second,
		Reconcile:   25 * time.Second,
		Gateway:     15 * time.Second,
		Cleanup:     5 * time.Second,
		Publish:     5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 5 * time.Second,
		Reconcile:   4 * time.Second,
		Gateway:     2 * time.Second,
		Cleanup:     1 * time.Second,
		Publish:     1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// ReconcileContext creates a context bounding one reconciliation attempt
func (tc *TimeoutConfig) ReconcileContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Reconcile)
}

// CleanupContext creates a detached context for work that must not be tied to the request
func (tc *TimeoutConfig) CleanupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), tc.Cleanup)
}

// PublishContext creates a context for change event delivery
func (tc *TimeoutConfig) PublishContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.Publish)
}
