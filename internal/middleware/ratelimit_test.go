package middleware

import "testing"

func TestTokenBucketExhaustion(t *testing.T) {
	tb := NewTokenBucket(3, 1)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should pass within capacity", i)
		}
	}
	if tb.Allow() {
		t.Fatal("request over capacity should be denied")
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if !rl.Allow("10.0.0.1:1234") {
		t.Fatal("first request for key A should pass")
	}
	if rl.Allow("10.0.0.1:1234") {
		t.Fatal("second request for key A should be denied")
	}
	if !rl.Allow("10.0.0.2:1234") {
		t.Fatal("key B must have its own bucket")
	}
}

func TestValidateLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: 20},
		{in: -5, want: 20},
		{in: 7, want: 7},
		{in: 500, want: 100},
	}
	for _, tt := range tests {
		if got := ValidateLimit(tt.in); got != tt.want {
			t.Fatalf("ValidateLimit(%d): want %d, got %d", tt.in, tt.want, got)
		}
	}
}
