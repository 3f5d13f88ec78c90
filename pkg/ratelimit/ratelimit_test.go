package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLimiter_Unlimited(t *testing.T) {
	tests := []struct {
		name             string
		globalRate       int
		globalBurst      int
		ipRate           int
		ipBurst          int
		expectLimiter    bool
		testRequests     int
		expectAllAllowed bool
	}{
		{"Both unlimited", 0, 0, 0, 0, false, 100, true},
		{"IP unlimited, global limited", 10, 20, 0, 0, true, 30, false},
		{"Global unlimited, IP limited", 0, 0, 5, 10, true, 20, false},
		{"Both limited", 100, 200, 10, 20, true, 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewLimiter(tt.globalRate, tt.globalBurst, tt.ipRate, tt.ipBurst)
			defer limiter.Stop()

			if (limiter != nil) != tt.expectLimiter {
				t.Fatalf("Expected limiter=%v, got limiter=%v", tt.expectLimiter, limiter != nil)
			}

			denied := 0
			for i := 0; i < tt.testRequests; i++ {
				if !limiter.Allow("192.168.1.1") {
					denied++
				}
			}

			if tt.expectAllAllowed && denied > 0 {
				t.Errorf("Expected all %d requests to be allowed, but %d were denied", tt.testRequests, denied)
			}
			if !tt.expectAllAllowed && denied == 0 {
				t.Errorf("Expected some requests to be denied, but all %d were allowed", tt.testRequests)
			}
		})
	}
}

func TestLimiter_PerIPIsolation(t *testing.T) {
	limiter := NewLimiter(0, 0, 1, 3)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("request %d from first client denied within burst", i)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Expected first client to be limited after burst")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Error("Expected second client to have its own bucket")
	}
}

func TestTokenBucket_ZeroRate(t *testing.T) {
	bucket := newTokenBucket(0, 0)

	if !bucket.allow() {
		t.Error("Expected the initial token to be granted")
	}
	if bucket.allow() {
		t.Error("Expected zero-rate bucket to deny after the initial token")
	}
}

func TestMiddleware(t *testing.T) {
	limiter := NewLimiter(0, 0, 1, 1)
	defer limiter.Stop()

	h := Middleware(limiter, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/convert", nil)
		req.RemoteAddr = "203.0.113.9:4711"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 429], got %v", codes)
	}
}
