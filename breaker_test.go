package swrcache

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOptions{Threshold: 5, RecoveryTime: time.Hour})
	for i := 0; i < 4; i++ {
		done, ok := b.Allow()
		if !ok {
			t.Fatalf("denied after %d failures", i)
		}
		done(false)
	}
	if b.IsOpen() {
		t.Fatalf("open after 4 failures")
	}
	done, _ := b.Allow()
	done(false)
	if !b.IsOpen() || b.State() != "open" {
		t.Fatalf("not open after 5 failures, state=%s", b.State())
	}
	if _, ok := b.Allow(); ok {
		t.Fatalf("open breaker admitted a request")
	}
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b := NewBreaker(BreakerOptions{})
	for i := 0; i < 4; i++ {
		done, _ := b.Allow()
		done(false)
	}
	done, _ := b.Allow()
	done(true)
	if n := b.ConsecutiveFailures(); n != 0 {
		t.Fatalf("streak = %d after success", n)
	}
	for i := 0; i < 4; i++ {
		done, _ := b.Allow()
		done(false)
	}
	if b.IsOpen() {
		t.Fatalf("non-consecutive failures opened the breaker")
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerOptions{
		Threshold:    1,
		RecoveryTime: 20 * time.Millisecond,
		OnStateChange: func(from, to string) {
			transitions = append(transitions, from+">"+to)
		},
	})
	done, _ := b.Allow()
	done(false)
	time.Sleep(30 * time.Millisecond)

	if b.State() != "half-open" || b.IsOpen() {
		t.Fatalf("state after recovery = %s", b.State())
	}
	probe, ok := b.Allow()
	if !ok {
		t.Fatalf("half-open breaker denied the probe")
	}
	if _, ok := b.Allow(); ok {
		t.Fatalf("second request admitted while probe in flight")
	}
	probe(false)
	if !b.IsOpen() {
		t.Fatalf("failed probe did not re-open")
	}

	time.Sleep(30 * time.Millisecond)
	probe, _ = b.Allow()
	probe(true)
	if b.State() != "closed" {
		t.Fatalf("successful probe did not close, state=%s", b.State())
	}

	want := []string{"closed>open", "open>half-open", "half-open>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}
