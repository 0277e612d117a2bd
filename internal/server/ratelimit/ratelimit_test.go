package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter builds a limiter with a controllable clock and no cleanup goroutine
func newTestLimiter(cfg *Config) (*Limiter, *time.Time) {
	cfg.CleanupInterval = 0
	l := NewLimiter(cfg)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_AllowAndRefill(t *testing.T) {
	l, now := newTestLimiter(&Config{Enabled: true, DefaultLimit: 3, DefaultWindow: time.Minute})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("10.0.0.1", "/session", http.MethodGet)
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, 2-i, info.Remaining)
	}

	allowed, info := l.Allow("10.0.0.1", "/session", http.MethodGet)
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, 20*time.Second, info.RetryAfter)
	assert.True(t, info.ResetTime.After(*now))

	*now = now.Add(21 * time.Second)
	allowed, _ = l.Allow("10.0.0.1", "/session", http.MethodGet)
	assert.True(t, allowed, "one token refilled")
}

func TestLimiter_ClientsAreIsolated(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute})
	defer l.Stop()

	allowed, _ := l.Allow("a", "/session", http.MethodGet)
	assert.True(t, allowed)
	allowed, _ = l.Allow("a", "/session", http.MethodGet)
	assert.False(t, allowed)
	allowed, _ = l.Allow("b", "/session", http.MethodGet)
	assert.True(t, allowed)
}

func TestLimiter_SubmitIsStricter(t *testing.T) {
	cfg := NewConfig(100, 5)
	l, _ := newTestLimiter(cfg)
	defer l.Stop()

	allowed, info := l.Allow("c", "/session", http.MethodPost)
	require.True(t, allowed)
	assert.Equal(t, 5, info.Limit)

	// Burst for submission is one fifth of the limit
	allowed, _ = l.Allow("c", "/session", http.MethodPost)
	assert.False(t, allowed)

	allowed, info = l.Allow("c", "/session", http.MethodGet)
	assert.True(t, allowed)
	assert.Equal(t, 100, info.Limit)
}

func TestLimiter_Unlimited(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *Config
		client string
		path   string
	}{
		{name: "disabled", cfg: NewConfig(0, 0), client: "x", path: "/session"},
		{name: "whitelisted", cfg: &Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute, Whitelist: ParseIPList("127.0.0.1, ::1")}, client: "::1", path: "/session"},
		{name: "health", cfg: &Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute}, client: "x", path: "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(tt.cfg)
			defer l.Stop()
			for i := 0; i < 5; i++ {
				allowed, info := l.Allow(tt.client, tt.path, http.MethodGet)
				require.True(t, allowed)
				assert.Equal(t, 0, info.Limit)
			}
		})
	}
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/session", Method: http.MethodPost, Limit: 1},
		{Path: "/session/export/", Method: http.MethodGet, Limit: 2},
	}

	assert.Equal(t, 1, MatchEndpoint("/session", http.MethodPost, configs).Limit)
	assert.Equal(t, 2, MatchEndpoint("/session/export/pdf", http.MethodGet, configs).Limit)
	assert.Nil(t, MatchEndpoint("/session/cancel", http.MethodPost, configs))
	assert.Nil(t, MatchEndpoint("/session", http.MethodGet, configs))
	assert.Equal(t, 0, MatchEndpoint("/health", http.MethodGet, configs).Limit)
}

func TestLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	l, now := newTestLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute, IdleTTL: time.Hour})
	defer l.Stop()

	l.Allow("old", "/session", http.MethodGet)
	*now = now.Add(90 * time.Minute)
	l.Allow("fresh", "/session", http.MethodGet)

	l.cleanupBuckets()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "fresh:/session:GET")
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute, CleanupInterval: time.Millisecond})
	l.Stop()
	l.Stop()
}
