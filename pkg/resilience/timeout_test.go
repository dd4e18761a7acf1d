package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTimeoutConfig_Hierarchy(t *testing.T) {
	for name, cfg := range map[string]*TimeoutConfig{
		"default": DefaultTimeoutConfig(),
		"test":    TestTimeoutConfig(),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Less(t, cfg.Reconcile, cfg.HTTPHandler, "reconcile must finish before the handler times out")
			assert.Less(t, cfg.Gateway, cfg.Reconcile, "gateway must finish before reconcile times out")
			assert.Positive(t, cfg.Cleanup)
			assert.Positive(t, cfg.Publish)
		})
	}
}

func TestTimeoutConfig_CleanupContextIsDetached(t *testing.T) {
	cfg := TestTimeoutConfig()

	ctx, cancel := cfg.CleanupContext()
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(cfg.Cleanup), deadline, 100*time.Millisecond)
}

func TestTimeoutConfig_PublishContextSurvivesParentCancel(t *testing.T) {
	cfg := TestTimeoutConfig()

	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := cfg.PublishContext(parent)
	defer cancel()

	cancelParent()
	assert.NoError(t, ctx.Err())

	_, ok := ctx.Deadline()
	assert.True(t, ok)
}

func TestTimeoutConfig_HandlerContext(t *testing.T) {
	cfg := TestTimeoutConfig()

	ctx, cancel := cfg.HandlerContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(cfg.HTTPHandler), deadline, 100*time.Millisecond)

	rctx, rcancel := cfg.ReconcileContext(ctx)
	defer rcancel()
	rdeadline, _ := rctx.Deadline()
	assert.True(t, rdeadline.Before(deadline))
}
