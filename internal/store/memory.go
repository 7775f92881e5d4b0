package store

import (
	"context"
	"sync"

	"heartchain/internal/chain"
	"heartchain/internal/model"
)

// Memory is an in-memory Store for tests, satisfying the same
// interface as SQLite per spec.md §9's "real KV store, in-memory stub
// for tests" pairing.
type Memory struct {
	mu         sync.Mutex
	anchors    map[string]model.AnchorRecord
	heartbeats map[string]model.HeartbeatState
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		anchors:    make(map[string]model.AnchorRecord),
		heartbeats: make(map[string]model.HeartbeatState),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) UpsertAnchor(_ context.Context, rec model.AnchorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anchors[rec.NodeID] = rec
	return nil
}

func (m *Memory) GetAnchor(_ context.Context, nodeID string) (model.AnchorRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.anchors[nodeID]
	return rec, ok, nil
}

func (m *Memory) UpsertHeartbeat(_ context.Context, hb model.HeartbeatState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats[hb.NodeID] = hb
	return nil
}

func (m *Memory) GetHeartbeat(_ context.Context, nodeID string) (model.HeartbeatState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hb, ok := m.heartbeats[nodeID]
	return hb, ok, nil
}

func (m *Memory) ScanAll(_ context.Context) ([]model.HeartbeatState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.HeartbeatState, 0, len(m.heartbeats))
	for _, hb := range m.heartbeats {
		out = append(out, hb)
	}
	return out, nil
}

func (m *Memory) ScanAnchors(_ context.Context) (map[string][chain.Width]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][chain.Width]byte, len(m.anchors))
	for id, rec := range m.anchors {
		out[id] = rec.Anchor
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
