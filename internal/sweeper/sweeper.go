// Package sweeper implements the liveness sweeper (C5): a periodic
// scan that marks silent nodes DEAD based on wall-clock last_ts, and
// emits a best-effort notification to an external sink (spec.md §4.5).
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"

	"heartchain/internal/cache"
	"heartchain/internal/clock"
	"heartchain/internal/model"
	"heartchain/internal/store"
)

// DefaultDeadTimeout is T_dead per spec.md §6's configuration table.
const DefaultDeadTimeout = 7 * time.Second

// tickInterval is fixed at 1s per spec.md §4.5 ("runs once per second").
const tickInterval = 1 * time.Second

// Notifier sends the best-effort "node-dead" datagram to an external
// sink. A nil Notifier disables notification entirely (spec.md §6:
// notify_addr is optional).
type Notifier interface {
	NotifyDead(nodeID string) error
}

// UDPNotifier sends "NODE_DEAD|<node_id>" to a fixed UDP address.
type UDPNotifier struct {
	Addr string
}

// NotifyDead sends the notification datagram. Failures are the
// caller's concern to log and swallow — spec.md §4.5 calls this
// advisory, not reliable.
func (n UDPNotifier) NotifyDead(nodeID string) error {
	conn, err := net.Dial("udp", n.Addr)
	if err != nil {
		return fmt.Errorf("dial notify sink: %w", err)
	}
	defer conn.Close()
	_, err = conn.Write([]byte("NODE_DEAD|" + nodeID))
	if err != nil {
		return fmt.Errorf("send notify datagram: %w", err)
	}
	return nil
}

// Sweeper periodically scans the cache for silent nodes.
type Sweeper struct {
	cache       *cache.Cache
	store       store.Store
	clock       clock.Clock
	deadTimeout time.Duration
	notifier    Notifier
}

// New creates a Sweeper. notifier may be nil to disable notification.
func New(c *cache.Cache, s store.Store, clk clock.Clock, deadTimeout time.Duration, notifier Notifier) *Sweeper {
	if deadTimeout <= 0 {
		deadTimeout = DefaultDeadTimeout
	}
	return &Sweeper{cache: c, store: s, clock: clk, deadTimeout: deadTimeout, notifier: notifier}
}

// Run ticks once per second until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log := slog.With("component", "sweeper")
	log.Info("starting", "dead_timeout", s.deadTimeout)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.Error("tick failed", "err", err)
			}
		}
	}
}

// Tick runs a single sweep: Snapshot() only enumerates candidate node
// IDs, since a stale copy of last_ts taken outside any lock cannot
// decide anything by itself. The actual expiry check and the DEAD
// transition happen together under the node's own lock inside
// cache.ExpireIfStale, so a heartbeat that commits between the
// snapshot and this call is never overwritten by a stale DEAD verdict
// (spec.md §5). Persistence failures for independent nodes are
// aggregated (via multierror) rather than aborting the rest of the
// scan.
func (s *Sweeper) Tick(ctx context.Context) error {
	now := s.clock.Now()
	snapshot := s.cache.Snapshot()

	var errs *multierror.Error
	for nodeID := range snapshot {
		updated, expired := s.cache.ExpireIfStale(nodeID, now, s.deadTimeout)
		if !expired {
			continue
		}

		hb := model.HeartbeatState{
			NodeID:    nodeID,
			LastIndex: updated.LastIndex,
			LastSeen:  updated.LastSeen,
			Status:    model.StatusDead,
			UpdatedAt: now,
		}
		if err := s.store.UpsertHeartbeat(ctx, hb); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("persist dead state for %s: %w", nodeID, err))
			slog.Error("persist dead state failed", "node_id", nodeID, "err", err)
		}

		slog.Warn("node marked dead", "node_id", nodeID, "silent_for", now.Sub(updated.LastSeen))
		s.notify(nodeID)
	}

	return errs.ErrorOrNil()
}

func (s *Sweeper) notify(nodeID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyDead(nodeID); err != nil {
		slog.Warn("dead notification failed", "node_id", nodeID, "err", err)
	}
}
