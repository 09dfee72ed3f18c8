package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock returns a limiter whose clock is advanced by the returned func.
func fakeClock(l *Limiter) func(time.Duration) {
	now := time.Now()
	l.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestAllow_Burst(t *testing.T) {
	l := NewLimiter(Limit{Rate: 1, Burst: 3})
	fakeClock(l)
	for i := 0; i < 3; i++ {
		if !l.Allow("n1") {
			t.Errorf("request %d within burst was rejected", i+1)
		}
	}
	if l.Allow("n1") {
		t.Error("request after the burst was allowed")
	}
}

func TestAllow_Refill(t *testing.T) {
	tests := []struct {
		name    string
		limit   Limit
		used    int
		advance time.Duration
		allowed int
	}{
		{"full refill", Limit{Rate: 10, Burst: 2}, 2, 200 * time.Millisecond, 2},
		{"capped at burst", Limit{Rate: 100, Burst: 3}, 3, 10 * time.Second, 3},
		{"partial refill adds to remainder", Limit{Rate: 2, Burst: 5}, 3, 250 * time.Millisecond, 2},
		{"zero rate never refills", Limit{Rate: 0, Burst: 2}, 2, time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.limit)
			advance := fakeClock(l)
			for i := 0; i < tt.used; i++ {
				l.Allow("k")
			}
			advance(tt.advance)

			got := 0
			for l.Allow("k") {
				got++
				if got > tt.limit.Burst {
					break
				}
			}
			if got != tt.allowed {
				t.Errorf("allowed %d after refill, want %d", got, tt.allowed)
			}
		})
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(Limit{Rate: 1, Burst: 1})
	fakeClock(l)
	l.Allow("n1")
	if l.Allow("n1") {
		t.Error("n1 should be exhausted")
	}
	if !l.Allow("n2") {
		t.Error("n2 shares a bucket with n1")
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l := NewLimiter(Limit{Rate: 0, Burst: 100})
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("k") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 100 {
		t.Errorf("allowed %d requests, want exactly the burst of 100", allowed)
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := NewToolLimiters(DefaultToolLimits)
	for tool := range DefaultToolLimits {
		if limiters[tool] == nil {
			t.Errorf("missing limiter for %s", tool)
		}
	}

	if err := CheckLimit(limiters, "unknown_tool", "n1"); err != nil {
		t.Errorf("unknown tool was limited: %v", err)
	}

	burst := DefaultToolLimits["nodenet_export"].Burst
	for i := 0; i < burst; i++ {
		if err := CheckLimit(limiters, "nodenet_export", "n1"); err != nil {
			t.Fatalf("export %d within burst: %v", i+1, err)
		}
	}
	if err := CheckLimit(limiters, "nodenet_export", "n1"); err == nil {
		t.Error("expected rate limit error after the burst")
	}
	if err := CheckLimit(limiters, "nodenet_export", "n2"); err != nil {
		t.Errorf("other nodenet was limited: %v", err)
	}
}
