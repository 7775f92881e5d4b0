// Package model holds the entities shared by the persistence adapter
// (C6), the state cache (C7), and the verifier (C4): the anchor
// record and heartbeat state with its status state machine
// (spec.md §3). Node IDs are plain strings.
package model

import (
	"fmt"
	"time"

	"heartchain/internal/chain"
)

// Status is the lifecycle state of a node's HeartbeatState.
type Status uint8

const (
	StatusRegistered Status = iota + 1
	StatusAlive
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusRegistered:
		return "REGISTERED"
	case StatusAlive:
		return "ALIVE"
	case StatusDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus parses the text form stored in heartbeat_state.status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "REGISTERED":
		return StatusRegistered, nil
	case "ALIVE":
		return StatusAlive, nil
	case "DEAD":
		return StatusDead, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// Transition validates a status change per spec.md §4.4's state
// diagram: REGISTERED->ALIVE (first beat), ALIVE->ALIVE (subsequent
// beats), {ALIVE,REGISTERED}->DEAD (sweeper), ANY->REGISTERED (C3
// registration always succeeds regardless of prior status — per
// spec.md §4.3 it establishes a new chain identity and is "the only
// path that legitimately rewinds last_i", unconditionally). An
// invalid transition returns the receiver unchanged together with
// false, so callers can assert on it.
func (s Status) Transition(to Status) (Status, bool) {
	if to == StatusRegistered {
		return to, true
	}
	switch s {
	case StatusRegistered:
		if to == StatusAlive || to == StatusDead {
			return to, true
		}
	case StatusAlive:
		if to == StatusAlive || to == StatusDead {
			return to, true
		}
	}
	return s, false
}

// AnchorRecord is the node_keys row: a node's published chain tip.
type AnchorRecord struct {
	NodeID    string
	Anchor    [chain.Width]byte
	CreatedAt time.Time
}

// HeartbeatState is the heartbeat_state row: a node's verifier-side
// liveness bookkeeping.
type HeartbeatState struct {
	NodeID    string
	LastIndex int
	LastSeen  time.Time
	Status    Status
	UpdatedAt time.Time
}
