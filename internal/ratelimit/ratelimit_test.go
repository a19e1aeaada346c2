package ratelimit

import (
	"testing"
	"time"
)

func TestAllowUnderLimit(t *testing.T) {
	l := NewFixedWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("Fourth request should be denied")
	}
}

func TestClientsAreIndependent(t *testing.T) {
	l := NewFixedWindow(1, time.Minute)

	if !l.Allow("10.0.0.1") {
		t.Fatal("First client should be allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("Second client should have its own window")
	}
	if l.Allow("10.0.0.1") {
		t.Error("First client should be over its limit")
	}
}

func TestWindowResets(t *testing.T) {
	l := NewFixedWindow(1, 10*time.Millisecond)

	if !l.Allow("10.0.0.1") {
		t.Fatal("First request should be allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("Second request should be denied")
	}

	time.Sleep(20 * time.Millisecond)

	if !l.Allow("10.0.0.1") {
		t.Error("Request after window expiry should be allowed")
	}
}

func TestZeroLimitDeniesEverything(t *testing.T) {
	l := NewFixedWindow(0, time.Minute)

	if l.Allow("10.0.0.1") {
		t.Error("Limiter with max 0 should deny all requests")
	}
}
