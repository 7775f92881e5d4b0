// Package ntpcheck runs a periodic, advisory-only NTP offset check on
// the Coordinator. Its status never gates an accept/reject decision —
// the heartbeat protocol's own timestamp field is explicitly advisory
// (spec.md §4.4, §9) — this exists purely so operators can tell clock
// drift apart from a genuinely dead node when reading logs.
package ntpcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"heartchain/internal/check"
	"heartchain/internal/clock"
)

const (
	defaultPool      = "pool.ntp.org"
	defaultInterval  = 60 * time.Second
	defaultThreshold = 500 * time.Millisecond
)

// Phase is the lifecycle of a single Checker's last-known status.
type Phase uint8

const (
	PhaseUnchecked Phase = iota + 1
	PhaseHealthy
	PhaseUnhealthyOffset
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUnchecked:
		return "unchecked"
	case PhaseHealthy:
		return "healthy"
	case PhaseUnhealthyOffset:
		return "unhealthy_offset"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Transition validates that p -> to is a legal phase move, asserting
// in debug builds if not.
func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case PhaseUnchecked:
		ok = to == PhaseHealthy || to == PhaseUnhealthyOffset || to == PhaseError
	case PhaseHealthy:
		ok = to == PhaseUnhealthyOffset || to == PhaseError
	case PhaseUnhealthyOffset:
		ok = to == PhaseHealthy || to == PhaseError
	case PhaseError:
		ok = to == PhaseHealthy || to == PhaseUnhealthyOffset || to == PhaseError
	}
	check.Assertf(ok, "ntpcheck transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

// Status is the last observed NTP offset reading.
type Status struct {
	Offset    time.Duration
	Phase     Phase
	Error     string
	CheckedAt time.Time
}

// Checker periodically queries an NTP server and records clock skew
// advisory status. The zero value is not usable; use NewChecker.
type Checker struct {
	mu        sync.RWMutex
	status    Status
	pool      string
	interval  time.Duration
	threshold time.Duration
	clock     clock.Clock

	// QueryFunc overrides the real ntp.Query call, for tests.
	QueryFunc func(pool string) (*ntp.Response, error)
}

// NewChecker creates a Checker against the default public NTP pool.
func NewChecker(clk clock.Clock) *Checker {
	check.Assert(clk != nil, "ntpcheck.NewChecker: clock must not be nil")
	return &Checker{
		pool:      defaultPool,
		interval:  defaultInterval,
		threshold: defaultThreshold,
		status:    Status{Phase: PhaseUnchecked},
		clock:     clk,
	}
}

// Run checks immediately, then once per interval, until ctx is
// cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.check()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.check()
		}
	}
}

func (c *Checker) check() {
	query := ntp.Query
	if c.QueryFunc != nil {
		query = c.QueryFunc
	}
	resp, err := query(c.pool)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if err != nil {
		c.status = Status{Error: err.Error(), Phase: PhaseError, CheckedAt: now}
		slog.Warn("ntp check failed", "component", "ntpcheck", "pool", c.pool, "err", err)
		return
	}

	phase := PhaseUnhealthyOffset
	if resp.ClockOffset.Abs() < c.threshold {
		phase = PhaseHealthy
	}
	c.status = Status{Offset: resp.ClockOffset, Phase: phase, CheckedAt: now}
	slog.Info("ntp offset", "component", "ntpcheck", "pool", c.pool, "offset", resp.ClockOffset, "phase", phase.String())
}

// Status returns the most recent reading.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}
