package cache

import (
	"testing"
	"time"

	"heartchain/internal/chain"
	"heartchain/internal/model"
)

func TestRegisterThenCommitBeat(t *testing.T) {
	c := New()
	var anchor [chain.Width]byte
	anchor[0] = 1
	c.Register("SN1", anchor)

	entry, ok := c.Get("SN1")
	if !ok || entry.Status != model.StatusRegistered || entry.LastIndex != 0 {
		t.Fatalf("Get after Register = %+v, ok=%v", entry, ok)
	}

	now := time.Now()
	got := c.CommitBeat("SN1", 1, now)
	if got.Status != model.StatusAlive || got.LastIndex != 1 || !got.LastSeen.Equal(now) {
		t.Fatalf("CommitBeat = %+v", got)
	}

	entry, ok = c.Get("SN1")
	if !ok || entry.LastIndex != 1 {
		t.Fatalf("Get after CommitBeat = %+v, ok=%v", entry, ok)
	}
}

func TestExpireIfStaleIsIdempotent(t *testing.T) {
	c := New()
	var anchor [chain.Width]byte
	c.Register("SN1", anchor)
	beatAt := time.Now()
	c.CommitBeat("SN1", 1, beatAt)

	deadTimeout := 10 * time.Second
	past := beatAt.Add(deadTimeout + time.Second)

	entry, transitioned := c.ExpireIfStale("SN1", past, deadTimeout)
	if !transitioned || entry.Status != model.StatusDead {
		t.Fatalf("first ExpireIfStale: entry=%+v transitioned=%v", entry, transitioned)
	}

	_, transitioned = c.ExpireIfStale("SN1", past, deadTimeout)
	if transitioned {
		t.Fatalf("second ExpireIfStale on already-DEAD node returned transitioned=true")
	}
}

func TestExpireIfStaleUnknownNodeIsNoop(t *testing.T) {
	c := New()
	if _, ok := c.ExpireIfStale("nope", time.Now(), 10*time.Second); ok {
		t.Fatalf("ExpireIfStale on unknown node returned ok=true")
	}
}

func TestExpireIfStaleNotYetStaleIsNoop(t *testing.T) {
	c := New()
	var anchor [chain.Width]byte
	c.Register("SN1", anchor)
	beatAt := time.Now()
	c.CommitBeat("SN1", 1, beatAt)

	deadTimeout := 10 * time.Second
	fresh := beatAt.Add(time.Second)

	entry, transitioned := c.ExpireIfStale("SN1", fresh, deadTimeout)
	if transitioned || entry.Status != model.StatusAlive {
		t.Fatalf("ExpireIfStale on fresh node: entry=%+v transitioned=%v", entry, transitioned)
	}
}

func TestPreloadSeedsFromStore(t *testing.T) {
	c := New()
	var anchor [chain.Width]byte
	anchor[3] = 9
	now := time.Now()
	c.Preload(
		map[string][chain.Width]byte{"SN1": anchor},
		[]model.HeartbeatState{{NodeID: "SN1", LastIndex: 4, LastSeen: now, Status: model.StatusAlive}},
	)

	entry, ok := c.Get("SN1")
	if !ok || entry.LastIndex != 4 || entry.Status != model.StatusAlive || entry.Anchor != anchor {
		t.Fatalf("Get after Preload = %+v, ok=%v", entry, ok)
	}
}

func TestSnapshotCopiesAllNodes(t *testing.T) {
	c := New()
	var a1, a2 [chain.Width]byte
	c.Register("SN1", a1)
	c.Register("SN2", a2)
	c.CommitBeat("SN1", 2, time.Now())

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot returned %d entries, want 2", len(snap))
	}
	if snap["SN1"].LastIndex != 2 {
		t.Fatalf("snapshot SN1 = %+v", snap["SN1"])
	}
}

func TestWithLockMutatesInPlace(t *testing.T) {
	c := New()
	var anchor [chain.Width]byte
	c.Register("SN1", anchor)

	c.WithLock("SN1", func(e *Entry) {
		e.LastIndex = 7
	})

	entry, _ := c.Get("SN1")
	if entry.LastIndex != 7 {
		t.Fatalf("WithLock mutation not observed: %+v", entry)
	}
}
