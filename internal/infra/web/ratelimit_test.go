package web

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_WindowReset(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow("a") {
		t.Error("third request allowed inside window")
	}
	if !rl.Allow("b") {
		t.Error("other client limited")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("a") {
		t.Error("request rejected after window passed")
	}
}

func TestRateLimiter_PrunesIdleBuckets(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(5, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(2 * time.Minute)
	rl.Allow("b")

	if _, ok := rl.buckets["a"]; ok {
		t.Error("idle bucket kept")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"forwarded chain", "X-Forwarded-For", "203.0.113.7, 10.0.0.1", "203.0.113.7"},
		{"real ip", "X-Real-IP", "198.51.100.2", "198.51.100.2"},
		{"remote addr", "", "", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
