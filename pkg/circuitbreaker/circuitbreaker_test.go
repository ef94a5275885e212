package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func newTestBreaker(clock *time.Time) *Breaker {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 2, OpenTimeout: 10 * time.Second, HalfOpenMaxCalls: 1})
	b.now = func() time.Time { return *clock }
	return b
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newTestBreaker(&clock)

	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected errBoom, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("open breaker must reject without calling fn, err=%v called=%v", err, called)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newTestBreaker(&clock)

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errBoom })

	if b.State() != StateClosed {
		t.Errorf("non-consecutive failures must not open the breaker, got %s", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newTestBreaker(&clock)
	var transitions []string
	b.OnStateChange(func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) })

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })

	clock = clock.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open after timeout, got %s", b.State())
	}

	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return nil })
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successes, got %s", b.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newTestBreaker(&clock)

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	clock = clock.Add(11 * time.Second)

	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Errorf("failure in half_open must reopen, got %s", b.State())
	}
}
