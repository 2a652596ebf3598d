// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/indexes", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	h := rateLimitMiddleware(RateLimitConfig{Burst: 1}, time.Now)(okHandler())
	for range 20 {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1").Code)
	}
}

func TestRateLimitMiddleware_ExceedsBurst(t *testing.T) {
	clock := newFakeClock()
	h := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 1, Burst: 3}, clock.now)(okHandler())

	for i := range 3 {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1").Code, "request %d", i)
	}
	rec := hit(h, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRateLimitMiddleware_PerIPIsolation(t *testing.T) {
	clock := newFakeClock()
	h := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, clock.now)(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2").Code)
}

func TestRateLimitMiddleware_TokensRefill(t *testing.T) {
	clock := newFakeClock()
	h := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 2, Burst: 1}, clock.now)(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1").Code)

	clock.advance(500 * time.Millisecond)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1").Code)
}

func TestVisitorLimiter_SweepsIdleAndCapsVisitors(t *testing.T) {
	clock := newFakeClock()
	l := newVisitorLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: 3}, clock.now)

	for i := range 5 {
		l.allow(fmt.Sprintf("10.0.0.%d", i))
		clock.advance(time.Second)
	}
	require.Equal(t, 5, l.size())

	// The next request past the sweep interval trims to the cap, keeping
	// the most recently seen visitors.
	clock.advance(sweepInterval)
	l.allow("10.0.0.4")
	assert.Equal(t, 3, l.size())

	clock.advance(visitorIdle + sweepInterval)
	l.allow("10.0.0.9")
	assert.Equal(t, 1, l.size())
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{name: "disabled", cfg: RateLimitConfig{}},
		{name: "valid", cfg: RateLimitConfig{RequestsPerSecond: 5, Burst: 10}},
		{name: "negative rate", cfg: RateLimitConfig{RequestsPerSecond: -1}, wantErr: true},
		{name: "rate without burst", cfg: RateLimitConfig{RequestsPerSecond: 5}, wantErr: true},
		{name: "negative max visitors", cfg: RateLimitConfig{MaxVisitors: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, semerr.HasCode(err, semerr.CodeServerConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, defaultMaxVisitors, cfg.MaxVisitors)
		})
	}
}

func TestNew_RejectsInvalidRateLimit(t *testing.T) {
	_, err := New(Config{ListenAddr: "127.0.0.1:0", RateLimit: RateLimitConfig{RequestsPerSecond: 1}})
	require.Error(t, err)
	assert.True(t, semerr.HasCode(err, semerr.CodeServerConfigInvalid))
}
