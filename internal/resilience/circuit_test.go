package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedState_PassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 3,
		CoolDown:         1 * time.Minute,
	}
	cb := NewCircuitBreaker(cfg)

	// Fail 3 times to trip the breaker.
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected open state after %d failures, got %s", cfg.FailureThreshold, cb.State())
	}

	// Next call should be rejected immediately, without invoking the provider.
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 3,
		CoolDown:         1 * time.Minute,
	}
	cb := NewCircuitBreaker(cfg)

	// Fail twice (below threshold).
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}

	failures, state := cb.Counters()
	if failures != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", failures)
	}
	if state != CircuitClosed {
		t.Errorf("expected closed state, got %s", state)
	}

	// Success resets counter.
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return nil
	})

	failures, _ = cb.Counters()
	if failures != 0 {
		t.Errorf("expected 0 consecutive failures after success, got %d", failures)
	}
}

func TestCircuitBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	now := time.Now()
	cfg := BreakerConfig{
		FailureThreshold: 2,
		CoolDown:         100 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)
	cb.nowFunc = func() time.Time { return now }

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	// Advance time past the cool-down.
	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected half-open state after cool-down, got %s", cb.State())
	}

	// Successful trial call closes the circuit.
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state after successful trial call, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsSingleTrialCall(t *testing.T) {
	now := time.Now()
	cfg := BreakerConfig{
		FailureThreshold: 1,
		CoolDown:         100 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)
	cb.nowFunc = func() time.Time { return now }

	// Trip the breaker.
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	// Advance time past the cool-down.
	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	// Hold the trial call in flight.
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(_ context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// Every caller arriving while the trial call is outstanding is rejected.
	for i := 0; i < 4; i++ {
		err := cb.Execute(context.Background(), func(_ context.Context) error {
			t.Error("should not be called while a trial call is in flight")
			return nil
		})
		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("caller %d: expected ErrCircuitOpen, got %v", i, err)
		}
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected trial call error: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state after successful trial call, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailure_Reopens(t *testing.T) {
	now := time.Now()
	cfg := BreakerConfig{
		FailureThreshold: 2,
		CoolDown:         100 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg)
	cb.nowFunc = func() time.Time { return now }

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}

	// Advance time past the cool-down.
	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	// Fail the trial call → reopen with a fresh cool-down.
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("still failing")
	})

	failures, state := cb.Counters()
	if state != CircuitOpen {
		t.Errorf("expected open state after half-open failure, got %s", state)
	}
	if failures != 3 {
		t.Errorf("expected 3 total failures, got %d", failures)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []struct{ from, to CircuitState }
	cfg := BreakerConfig{
		FailureThreshold: 2,
		CoolDown:         1 * time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, struct{ from, to CircuitState }{from, to})
		},
	}
	cb := NewCircuitBreaker(cfg)

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}

	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != CircuitClosed || transitions[0].to != CircuitOpen {
		t.Errorf("expected closed→open, got %s→%s", transitions[0].from, transitions[0].to)
	}
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 2,
		CoolDown:         1 * time.Minute,
		ShouldTrip: func(err error) bool {
			return err.Error() == "tripworthy"
		},
	}
	cb := NewCircuitBreaker(cfg)

	// These shouldn't count toward the threshold.
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("non-tripworthy")
		})
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed (non-tripworthy errors), got %s", cb.State())
	}

	// These should trip.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("tripworthy")
		})
	}
	if cb.State() != CircuitOpen {
		t.Errorf("expected open after tripworthy errors, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 2,
		CoolDown:         1 * time.Hour,
	}
	cb := NewCircuitBreaker(cfg)

	// Trip it.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	// Manual reset.
	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after reset, got %s", cb.State())
	}

	// Should work normally now.
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	cfg := BreakerConfig{
		FailureThreshold: 100,
		CoolDown:         1 * time.Minute,
	}
	cb := NewCircuitBreaker(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(_ context.Context) error {
				if i%2 == 0 {
					return errors.New("fail")
				}
				return nil
			})
		}()
	}
	wg.Wait()
	// Just verifying no race/panic.
}

func TestProviderBreakers_GetOrCreate(t *testing.T) {
	pb := NewProviderBreakers(DefaultBreakerConfig(), nil)

	cb1 := pb.Get("navigation")
	cb2 := pb.Get("navigation")
	cb3 := pb.Get("dom")

	if cb1 != cb2 {
		t.Error("expected same breaker for same provider kind")
	}
	if cb1 == cb3 {
		t.Error("expected different breakers for different provider kinds")
	}
}

func TestProviderBreakers_PerKindConfig(t *testing.T) {
	pb := NewProviderBreakers(
		BreakerConfig{FailureThreshold: 5, CoolDown: 1 * time.Hour},
		map[string]BreakerConfig{
			"semantic": {FailureThreshold: 1, CoolDown: 1 * time.Hour},
		},
	)

	// Semantic trips after a single failure; navigation stays closed.
	_ = pb.Get("semantic").Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})
	_ = pb.Get("navigation").Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})

	states := pb.States()
	if states["semantic"] != CircuitOpen {
		t.Errorf("expected semantic=open, got %s", states["semantic"])
	}
	if states["navigation"] != CircuitClosed {
		t.Errorf("expected navigation=closed, got %s", states["navigation"])
	}
}

func TestProviderBreakers_States(t *testing.T) {
	pb := NewProviderBreakers(BreakerConfig{
		FailureThreshold: 1,
		CoolDown:         1 * time.Hour,
	}, nil)

	// Create a breaker and trip it.
	cb := pb.Get("ocr")
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})

	// Keep navigation healthy.
	_ = pb.Get("navigation")

	states := pb.States()
	if states["ocr"] != CircuitOpen {
		t.Errorf("expected ocr=open, got %s", states["ocr"])
	}
	if states["navigation"] != CircuitClosed {
		t.Errorf("expected navigation=closed, got %s", states["navigation"])
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
