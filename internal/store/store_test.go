package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"heartchain/internal/chain"
	"heartchain/internal/model"
)

func TestMemoryStoreConformance(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		return NewMemory()
	})
}

func TestSQLiteStoreConformance(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		dir := t.TempDir()
		s, err := Open(filepath.Join(dir, "heartchain.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func testStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("anchor upsert and lookup", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, ok, err := s.GetAnchor(ctx, "SN1"); err != nil || ok {
			t.Fatalf("GetAnchor on empty store: ok=%v err=%v", ok, err)
		}

		var anchor [chain.Width]byte
		anchor[0] = 0xAB
		rec := model.AnchorRecord{NodeID: "SN1", Anchor: anchor, CreatedAt: time.Now().Truncate(time.Second)}
		if err := s.UpsertAnchor(ctx, rec); err != nil {
			t.Fatalf("UpsertAnchor: %v", err)
		}

		got, ok, err := s.GetAnchor(ctx, "SN1")
		if err != nil || !ok {
			t.Fatalf("GetAnchor after upsert: ok=%v err=%v", ok, err)
		}
		if got.Anchor != anchor {
			t.Fatalf("anchor mismatch: got %x want %x", got.Anchor, anchor)
		}

		// Re-registration overwrites.
		anchor2 := anchor
		anchor2[1] = 0xCD
		rec2 := model.AnchorRecord{NodeID: "SN1", Anchor: anchor2, CreatedAt: rec.CreatedAt.Add(time.Hour)}
		if err := s.UpsertAnchor(ctx, rec2); err != nil {
			t.Fatalf("UpsertAnchor overwrite: %v", err)
		}
		got2, ok, err := s.GetAnchor(ctx, "SN1")
		if err != nil || !ok {
			t.Fatalf("GetAnchor after overwrite: ok=%v err=%v", ok, err)
		}
		if got2.Anchor != anchor2 {
			t.Fatalf("anchor not overwritten: got %x want %x", got2.Anchor, anchor2)
		}
	})

	t.Run("heartbeat upsert and scan", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		now := time.Now().Truncate(time.Second)
		hb := model.HeartbeatState{NodeID: "SN2", LastIndex: 0, LastSeen: time.Time{}, Status: model.StatusRegistered, UpdatedAt: now}
		if err := s.UpsertHeartbeat(ctx, hb); err != nil {
			t.Fatalf("UpsertHeartbeat: %v", err)
		}

		got, ok, err := s.GetHeartbeat(ctx, "SN2")
		if err != nil || !ok {
			t.Fatalf("GetHeartbeat: ok=%v err=%v", ok, err)
		}
		if got.Status != model.StatusRegistered || got.LastIndex != 0 {
			t.Fatalf("unexpected heartbeat state: %+v", got)
		}

		hb.LastIndex = 5
		hb.Status = model.StatusAlive
		hb.LastSeen = now
		hb.UpdatedAt = now
		if err := s.UpsertHeartbeat(ctx, hb); err != nil {
			t.Fatalf("UpsertHeartbeat update: %v", err)
		}

		all, err := s.ScanAll(ctx)
		if err != nil {
			t.Fatalf("ScanAll: %v", err)
		}
		if len(all) != 1 || all[0].LastIndex != 5 || all[0].Status != model.StatusAlive {
			t.Fatalf("ScanAll = %+v, want single updated row", all)
		}
	})

	t.Run("heartbeat miss", func(t *testing.T) {
		s := newStore(t)
		if _, ok, err := s.GetHeartbeat(context.Background(), "nope"); err != nil || ok {
			t.Fatalf("GetHeartbeat on miss: ok=%v err=%v", ok, err)
		}
	})

	t.Run("scan anchors", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var a1, a2 [chain.Width]byte
		a1[0] = 0x01
		a2[0] = 0x02
		if err := s.UpsertAnchor(ctx, model.AnchorRecord{NodeID: "SN1", Anchor: a1, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("UpsertAnchor SN1: %v", err)
		}
		if err := s.UpsertAnchor(ctx, model.AnchorRecord{NodeID: "SN2", Anchor: a2, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("UpsertAnchor SN2: %v", err)
		}

		anchors, err := s.ScanAnchors(ctx)
		if err != nil {
			t.Fatalf("ScanAnchors: %v", err)
		}
		if len(anchors) != 2 || anchors["SN1"] != a1 || anchors["SN2"] != a2 {
			t.Fatalf("ScanAnchors = %+v, want SN1/SN2 with their anchors", anchors)
		}
	})
}
