// Package store implements the persistence adapter (C6): two logical
// tables, node_keys and heartbeat_state, with upsert/lookup operations
// and a startup scan to warm the state cache (C7). Per spec.md §4.6
// and §9, the store is a capability interface with two implementations
// here — a SQLite-backed one for production and an in-memory one for
// tests — either satisfies "read your own writes" plus per-row
// atomicity, which is all the adapter contract requires.
package store

import (
	"context"

	"heartchain/internal/chain"
	"heartchain/internal/model"
)

// Store is the C6 persistence adapter contract.
type Store interface {
	// UpsertAnchor writes or overwrites a node's anchor record. Per
	// spec.md §3, re-registration legitimately overwrites.
	UpsertAnchor(ctx context.Context, rec model.AnchorRecord) error

	// GetAnchor looks up a node's current anchor. ok is false on miss.
	GetAnchor(ctx context.Context, nodeID string) (rec model.AnchorRecord, ok bool, err error)

	// UpsertHeartbeat writes or overwrites a node's heartbeat state.
	UpsertHeartbeat(ctx context.Context, hb model.HeartbeatState) error

	// GetHeartbeat looks up a node's current heartbeat state. ok is
	// false on miss (e.g. before first registration).
	GetHeartbeat(ctx context.Context, nodeID string) (hb model.HeartbeatState, ok bool, err error)

	// ScanAll returns every heartbeat_state row, used once at
	// Coordinator startup to warm the state cache (C7).
	ScanAll(ctx context.Context) ([]model.HeartbeatState, error)

	// ScanAnchors returns every node_keys row, node_id -> anchor,
	// paired with ScanAll at startup to fully reconstruct cache
	// entries without waiting for a node's next beat.
	ScanAnchors(ctx context.Context) (map[string][chain.Width]byte, error)

	// Close releases any resources held by the store.
	Close() error
}
