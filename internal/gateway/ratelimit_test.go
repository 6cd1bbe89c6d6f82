// ABOUTME: Tests for the per-client admin API rate limiter
// ABOUTME: Covers burst exhaustion, refill, client keys, and idle entry cleanup

package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/2389/photoid-gateway/internal/auth"
)

func TestRateLimiter_BurstAndRefill(t *testing.T) {
	l := newRateLimiter(60, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("ip:1.2.3.4"))
	assert.True(t, l.allow("ip:1.2.3.4"))
	assert.False(t, l.allow("ip:1.2.3.4"))

	// Other clients have their own bucket.
	assert.True(t, l.allow("ip:5.6.7.8"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("ip:1.2.3.4"), "one token per second at 60/min")
}

func TestRateLimiter_CleansIdleEntries(t *testing.T) {
	l := newRateLimiter(60, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.lastCleanup = now

	l.allow("ip:idle")
	now = now.Add(limiterEntryTTL + limiterCleanup)
	l.allow("ip:active")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, idle := l.entries["ip:idle"]
	assert.False(t, idle)
	assert.Len(t, l.entries, 1)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/uploads", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "ip:10.0.0.7", clientKey(req))

	req = req.WithContext(auth.WithSubject(req.Context(), "ops"))
	assert.Equal(t, "sub:ops", clientKey(req))
}
