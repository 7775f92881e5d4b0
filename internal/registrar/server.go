// Package registrar implements the registration server (C3): a TCP
// listener that accepts (node_id, anchor) records, validates them, and
// upserts into the store, resetting heartbeat state to a fresh chain
// identity (spec.md §4.3).
package registrar

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"heartchain/internal/cache"
	"heartchain/internal/chain"
	"heartchain/internal/clock"
	"heartchain/internal/model"
	"heartchain/internal/store"
)

// maxFrame bounds a single registration request per spec.md §4.3.
const maxFrame = 1 << 20 // 1 MiB

// readTimeout bounds how long a connection may take to deliver its
// request before being dropped.
const readTimeout = 5 * time.Second

// ackResponse and nackResponse are the only two replies C3 ever sends.
const (
	ackResponse  = "ACK"
	nackResponse = "NACK"
)

// Server is the C3 registration server.
type Server struct {
	cache *cache.Cache
	store store.Store
	clock clock.Clock
}

// New creates a registration Server.
func New(c *cache.Cache, s store.Store, clk clock.Clock) *Server {
	return &Server{cache: c, store: s, clock: clk}
}

// ListenAndServe accepts connections until ctx is cancelled, spawning
// one worker goroutine per connection with no global lock beyond the
// store upsert (spec.md §4.3).
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	log := slog.With("component", "registrar")
	log.Info("listening", "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(readTimeout))

	data, err := readFrame(conn, maxFrame)
	if err != nil {
		slog.Warn("registration read failed", "err", err)
		_, _ = conn.Write([]byte(nackResponse))
		return
	}

	nodeID, anchor, err := parseRequest(data)
	if err != nil {
		slog.Warn("registration rejected", "err", err)
		_, _ = conn.Write([]byte(nackResponse))
		return
	}

	if err := s.Register(ctx, nodeID, anchor); err != nil {
		slog.Error("registration store failure", "node_id", nodeID, "err", err)
		_, _ = conn.Write([]byte(nackResponse))
		return
	}

	slog.Info("registered", "node_id", nodeID)
	_, _ = conn.Write([]byte(ackResponse))
}

// Register upserts the anchor and resets heartbeat state to
// last_i=0, status=REGISTERED — the only path that legitimately
// rewinds last_i (spec.md §3, §4.3).
func (s *Server) Register(ctx context.Context, nodeID string, anchor [chain.Width]byte) error {
	now := s.clock.Now()
	if err := s.store.UpsertAnchor(ctx, model.AnchorRecord{NodeID: nodeID, Anchor: anchor, CreatedAt: now}); err != nil {
		return fmt.Errorf("upsert anchor: %w", err)
	}
	hb := model.HeartbeatState{NodeID: nodeID, LastIndex: 0, Status: model.StatusRegistered, UpdatedAt: now}
	if err := s.store.UpsertHeartbeat(ctx, hb); err != nil {
		return fmt.Errorf("upsert heartbeat state: %w", err)
	}
	s.cache.Register(nodeID, anchor)
	return nil
}

// parseRequest parses "node_id|anchor_hex" and validates shape:
// separator present, node_id non-empty, anchor_hex even-length valid
// hex decoding to exactly chain.Width bytes (spec.md §4.3).
func parseRequest(data []byte) (nodeID string, anchor [chain.Width]byte, err error) {
	raw := string(data)
	idx := strings.IndexByte(raw, '|')
	if idx < 0 {
		return "", anchor, fmt.Errorf("missing '|' separator")
	}
	nodeID = raw[:idx]
	anchorHex := raw[idx+1:]
	if nodeID == "" {
		return "", anchor, fmt.Errorf("empty node_id")
	}
	if len(anchorHex)%2 != 0 {
		return "", anchor, fmt.Errorf("odd-length hex")
	}
	decoded, err := hex.DecodeString(anchorHex)
	if err != nil {
		return "", anchor, fmt.Errorf("invalid hex: %w", err)
	}
	if len(decoded) != chain.Width {
		return "", anchor, fmt.Errorf("anchor is %d bytes, want %d", len(decoded), chain.Width)
	}
	copy(anchor[:], decoded)
	return nodeID, anchor, nil
}

// idleGrace is how long readFrame waits for a trailing fragment after
// the first bytes arrive. The wire has no length prefix or delimiter
// (spec.md §6); the client sends once and then blocks reading the
// ACK/NACK reply, so EOF never arrives — the frame boundary is
// whenever the sender stops writing.
const idleGrace = 50 * time.Millisecond

// readFrame reads up to max bytes from conn: it blocks (up to the
// connection's overall deadline) for the first byte, then drains any
// immediately-following fragments within idleGrace before returning.
func readFrame(conn net.Conn, max int) ([]byte, error) {
	buf := make([]byte, 0, 256)
	tmp := make([]byte, 4096)

	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if len(buf) > max {
				return nil, fmt.Errorf("request exceeds %d bytes", max)
			}
			_ = conn.SetReadDeadline(time.Now().Add(idleGrace))
			continue
		}
		if err != nil {
			if len(buf) > 0 {
				break
			}
			return nil, err
		}
	}
	return buf, nil
}
