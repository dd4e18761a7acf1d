package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/payment/callback", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 2, zaptest.NewLogger(t))
	defer rl.Shutdown()

	handler := rl.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		// Same host, different ports share one bucket
		handler.ServeHTTP(rec, requestFrom("10.0.0.1:"+string(rune('1'+i))+"000"))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.2:1000"))
	assert.Equal(t, http.StatusOK, rec.Code, "other clients are unaffected")
}

func TestRateLimiter_EvictsOldestAtCapacity(t *testing.T) {
	rl := NewRateLimiter(10, 10, zaptest.NewLogger(t))
	defer rl.Shutdown()
	rl.maxSize = 2

	rl.getLimiter("a")
	time.Sleep(time.Millisecond)
	rl.getLimiter("b")
	rl.getLimiter("c")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.limiters, 2)
	assert.NotContains(t, rl.limiters, "a")
}

func TestRateLimiter_CleanupRemovesIdle(t *testing.T) {
	rl := NewRateLimiter(10, 10, zaptest.NewLogger(t))
	defer rl.Shutdown()

	rl.getLimiter("idle")
	rl.mu.Lock()
	rl.limiters["idle"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}

func TestRateLimiter_ShutdownIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, zaptest.NewLogger(t))
	rl.Shutdown()
	assert.NotPanics(t, rl.Shutdown)
}
