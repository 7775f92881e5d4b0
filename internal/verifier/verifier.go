// Package verifier implements the heartbeat verifier (C4): the UDP
// listener that authenticates each datagram against a node's anchor,
// enforces the monotonic skip-window policy, and commits accepted
// beats write-through to the cache and store (spec.md §4.4).
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"heartchain/internal/cache"
	"heartchain/internal/chain"
	"heartchain/internal/check"
	"heartchain/internal/clock"
	"heartchain/internal/model"
	"heartchain/internal/store"
	"heartchain/internal/wire"
)

// Kind enumerates the drop dispositions of spec.md §7. The zero value
// is not a valid Kind; use KindAccepted to mean "no drop".
type Kind int

const (
	KindAccepted Kind = iota + 1
	KindMalformed
	KindUnknownNode
	KindAuthMismatch
	KindChainMismatch
	KindReplayOrReorder
	KindSkipTooLarge
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindAccepted:
		return "ACCEPTED"
	case KindMalformed:
		return "MALFORMED"
	case KindUnknownNode:
		return "UNKNOWN_NODE"
	case KindAuthMismatch:
		return "AUTH_MISMATCH"
	case KindChainMismatch:
		return "CHAIN_MISMATCH"
	case KindReplayOrReorder:
		return "REPLAY_OR_REORDER"
	case KindSkipTooLarge:
		return "SKIP_TOO_LARGE"
	case KindStoreUnavailable:
		return "STORE_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// maxSkip is the tightest tolerated forward jump in i: Δ ∈ {1,2} may
// commit, per spec.md §4.4 and the rationale in §9.
const maxSkip = 2

// Decision is the single result sum type spec.md §9 calls for: either
// Accepted, or a drop Kind with the offending node/index for logging.
type Decision struct {
	Kind   Kind
	NodeID string
	Index  int
}

func (d Decision) Accepted() bool { return d.Kind == KindAccepted }

// Verifier processes heartbeat datagrams against the cache and store.
type Verifier struct {
	cache *cache.Cache
	store store.Store
	clock clock.Clock
}

// New creates a Verifier over the given cache and store.
func New(c *cache.Cache, s store.Store, clk clock.Clock) *Verifier {
	return &Verifier{cache: c, store: s, clock: clk}
}

// ListenAndServe binds the UDP port and processes datagrams until ctx
// is cancelled, at which point the socket is closed to unblock the
// blocking read.
func (v *Verifier) ListenAndServe(ctx context.Context, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	log := slog.With("component", "verifier")
	log.Info("listening", "addr", addr)

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) {
				log.Warn("udp read error", "err", err)
				continue
			}
			return fmt.Errorf("udp read: %w", err)
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		go v.handleDatagram(ctx, data)
	}
}

func (v *Verifier) handleDatagram(ctx context.Context, data []byte) {
	decision := v.Process(ctx, data)
	log := slog.With("component", "verifier")
	if decision.Accepted() {
		log.Info("accepted", "node_id", decision.NodeID, "i", decision.Index)
		return
	}
	log.Warn("dropped", "kind", decision.Kind.String(), "node_id", decision.NodeID, "i", decision.Index)
}

// Process authenticates and applies policy to a single raw datagram,
// committing write-through on acceptance: the store first, then the
// cache once the store write has succeeded. It is
// safe to call concurrently for different datagrams; updates to a
// single node's state are serialized by the cache's per-node lock.
func (v *Verifier) Process(ctx context.Context, data []byte) Decision {
	dg, err := wire.Parse(data)
	if err != nil {
		return Decision{Kind: KindMalformed}
	}

	rec, ok, err := v.lookupAnchor(ctx, dg.NodeID)
	if err != nil {
		return Decision{Kind: KindStoreUnavailable, NodeID: dg.NodeID, Index: dg.I}
	}
	if !ok {
		return Decision{Kind: KindUnknownNode, NodeID: dg.NodeID, Index: dg.I}
	}

	if gotTag := wire.Tag(dg.Payload, dg.W); !chain.Equal(gotTag, dg.Tag) {
		return Decision{Kind: KindAuthMismatch, NodeID: dg.NodeID, Index: dg.I}
	}

	if computed := chain.Iterate(dg.W, dg.I); !chain.Equal(computed, rec.Anchor) {
		return Decision{Kind: KindChainMismatch, NodeID: dg.NodeID, Index: dg.I}
	}

	var result Decision
	v.cache.WithLock(dg.NodeID, func(entry *cache.Entry) {
		delta := dg.I - entry.LastIndex
		if delta <= 0 {
			result = Decision{Kind: KindReplayOrReorder, NodeID: dg.NodeID, Index: dg.I}
			return
		}
		if delta > maxSkip {
			result = Decision{Kind: KindSkipTooLarge, NodeID: dg.NodeID, Index: dg.I}
			return
		}

		now := v.clock.Now()
		hb := model.HeartbeatState{
			NodeID:    dg.NodeID,
			LastIndex: dg.I,
			LastSeen:  now,
			Status:    model.StatusAlive,
			UpdatedAt: now,
		}
		if err := v.store.UpsertHeartbeat(ctx, hb); err != nil {
			slog.Error("persist heartbeat failed", "node_id", dg.NodeID, "err", err)
			result = Decision{Kind: KindStoreUnavailable, NodeID: dg.NodeID, Index: dg.I}
			return
		}

		to, okTransition := entry.Status.Transition(model.StatusAlive)
		check.Assertf(okTransition, "verifier: illegal status transition %s -> ALIVE for %s", entry.Status, dg.NodeID)
		entry.LastIndex = dg.I
		entry.LastSeen = now
		entry.Status = to
		result = Decision{Kind: KindAccepted, NodeID: dg.NodeID, Index: dg.I}
	})
	return result
}

// lookupAnchor checks the cache first, falling back to the store on a
// cache miss (e.g. a node registered before this verifier process's
// cache was preloaded in some unusual restart ordering).
func (v *Verifier) lookupAnchor(ctx context.Context, nodeID string) (model.AnchorRecord, bool, error) {
	if entry, ok := v.cache.Get(nodeID); ok {
		return model.AnchorRecord{NodeID: nodeID, Anchor: entry.Anchor}, true, nil
	}
	rec, ok, err := v.store.GetAnchor(ctx, nodeID)
	if err != nil {
		return model.AnchorRecord{}, false, fmt.Errorf("lookup anchor: %w", err)
	}
	if !ok {
		return model.AnchorRecord{}, false, nil
	}

	entry := cache.Entry{Anchor: rec.Anchor, Status: model.StatusRegistered}
	if hb, hbOK, err := v.store.GetHeartbeat(ctx, nodeID); err == nil && hbOK {
		entry.LastIndex = hb.LastIndex
		entry.LastSeen = hb.LastSeen
		entry.Status = hb.Status
	}
	v.cache.Warm(nodeID, entry)
	return rec, true, nil
}
