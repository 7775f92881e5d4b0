package ntpcheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"

	"heartchain/internal/clock"
)

func TestCheckRecordsHealthyWithinThreshold(t *testing.T) {
	fc := clock.NewFake(time.Now())
	c := NewChecker(fc)
	c.QueryFunc = func(string) (*ntp.Response, error) {
		return &ntp.Response{ClockOffset: 10 * time.Millisecond}, nil
	}

	c.check()
	st := c.Status()
	if st.Phase != PhaseHealthy {
		t.Fatalf("phase = %v, want healthy", st.Phase)
	}
}

func TestCheckRecordsUnhealthyOffsetBeyondThreshold(t *testing.T) {
	fc := clock.NewFake(time.Now())
	c := NewChecker(fc)
	c.QueryFunc = func(string) (*ntp.Response, error) {
		return &ntp.Response{ClockOffset: time.Second}, nil
	}

	c.check()
	st := c.Status()
	if st.Phase != PhaseUnhealthyOffset {
		t.Fatalf("phase = %v, want unhealthy_offset", st.Phase)
	}
}

func TestCheckRecordsErrorOnQueryFailure(t *testing.T) {
	fc := clock.NewFake(time.Now())
	c := NewChecker(fc)
	c.QueryFunc = func(string) (*ntp.Response, error) {
		return nil, errors.New("network unreachable")
	}

	c.check()
	st := c.Status()
	if st.Phase != PhaseError || st.Error == "" {
		t.Fatalf("status = %+v, want phase error with message", st)
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	fc := clock.NewFake(time.Now())
	c := NewChecker(fc)
	var calls int
	c.QueryFunc = func(string) (*ntp.Response, error) {
		calls++
		return &ntp.Response{ClockOffset: 0}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if calls < 1 {
		t.Fatalf("expected at least one check before cancellation, got %d", calls)
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	got := PhaseUnchecked.Transition(PhaseUnchecked)
	if got != PhaseUnchecked {
		t.Fatalf("illegal transition should be rejected and return unchanged phase, got %v", got)
	}
}

func TestTransitionAllowsDocumentedMoves(t *testing.T) {
	if got := PhaseUnchecked.Transition(PhaseHealthy); got != PhaseHealthy {
		t.Fatalf("Unchecked -> Healthy should succeed, got %v", got)
	}
	if got := PhaseHealthy.Transition(PhaseError); got != PhaseError {
		t.Fatalf("Healthy -> Error should succeed, got %v", got)
	}
}
