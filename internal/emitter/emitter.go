// Package emitter implements the node-side half of the protocol (C2):
// chain lifecycle on the node, anchor registration with the
// Coordinator, and the periodic UDP beat loop (spec.md §4.2).
package emitter

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"heartchain/internal/chain"
	"heartchain/internal/wire"
)

// File names for the three atomically-written chain artifacts,
// matching the original python client's on-disk layout.
const (
	SeedFile   = "private_key.bin"
	ChainFile  = "winternitz_chain.bin"
	AnchorFile = "public_key.bin"
)

// registerTimeout bounds the TCP registration exchange (spec.md §4.2).
const registerTimeout = 5 * time.Second

// ErrRegistrationFailed is returned when the Coordinator does not ACK
// registration: NACK, timeout, or short read all map to this error,
// which is fatal for the emitter process (spec.md §7).
var ErrRegistrationFailed = errors.New("registration failed")

// ErrChainExhausted signals the emitter has spent every beat of its
// chain; this is a clean, terminal exit (spec.md §7).
var ErrChainExhausted = errors.New("chain exhausted")

// Emitter holds one node's chain lifecycle and emission state.
type Emitter struct {
	NodeID  string
	Chain   *chain.Chain
	dataDir string
	i       int // next beat index to send, starts at 1 (index 0 reserved for anchor)
}

// Bootstrap loads an existing chain from dataDir, or generates and
// atomically persists a fresh one of length n if none exists
// (spec.md §4.2). It fails with chain.ErrCorrupt if an existing chain
// file fails to verify.
func Bootstrap(nodeID, dataDir string, n int) (*Emitter, error) {
	chainPath := filepath.Join(dataDir, ChainFile)

	data, err := os.ReadFile(chainPath)
	if err == nil {
		c, err := chain.FromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("load existing chain: %w", err)
		}
		slog.Info("loaded existing chain", "node_id", nodeID, "length", c.N())
		return &Emitter{NodeID: nodeID, Chain: c, dataDir: dataDir, i: 1}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read chain file: %w", err)
	}

	c, err := chain.Generate(n)
	if err != nil {
		return nil, fmt.Errorf("generate chain: %w", err)
	}
	if err := persistChain(dataDir, c); err != nil {
		return nil, fmt.Errorf("persist chain: %w", err)
	}
	slog.Info("generated new chain", "node_id", nodeID, "length", n)
	return &Emitter{NodeID: nodeID, Chain: c, dataDir: dataDir, i: 1}, nil
}

// persistChain writes the seed, full chain, and anchor via
// write-temp-then-rename into dataDir so a crash mid-write never
// leaves a partial file at the target path (spec.md §4.2).
func persistChain(dataDir string, c *chain.Chain) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	seed := c.Seed()
	anchor := c.Anchor()
	for _, f := range []struct {
		name string
		data []byte
	}{
		{SeedFile, seed[:]},
		{ChainFile, c.Bytes()},
		{AnchorFile, anchor[:]},
	} {
		if err := writeTempThenRename(dataDir, f.name, f.data); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

func writeTempThenRename(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}

// Register opens a TCP connection to coordinatorAddr, sends
// "node_id|anchor_hex", and expects the literal "ACK". Anything else —
// "NACK", a timeout, or a short read — is ErrRegistrationFailed.
func (e *Emitter) Register(ctx context.Context, coordinatorAddr string) error {
	d := net.Dialer{Timeout: registerTimeout}
	conn, err := d.DialContext(ctx, "tcp", coordinatorAddr)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrRegistrationFailed, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(registerTimeout))

	anchor := e.Chain.Anchor()
	req := e.NodeID + "|" + hex.EncodeToString(anchor[:])
	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("%w: send: %v", ErrRegistrationFailed, err)
	}

	buf := make([]byte, 8)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("%w: read ack: %v", ErrRegistrationFailed, err)
	}
	if string(buf[:n]) != "ACK" {
		return fmt.Errorf("%w: got %q", ErrRegistrationFailed, buf[:n])
	}

	e.i = 1
	slog.Info("registered with coordinator", "node_id", e.NodeID, "addr", coordinatorAddr)
	return nil
}

// EmitLoop sends beats i = 1..N-1, sleeping interval between sends,
// until the chain is exhausted, ctx is cancelled, or an unrecoverable
// send error occurs. It never re-sends an index <= the last one sent.
func (e *Emitter) EmitLoop(ctx context.Context, coordinatorAddr string, interval time.Duration) error {
	conn, err := net.Dial("udp", coordinatorAddr)
	if err != nil {
		return fmt.Errorf("dial udp %s: %w", coordinatorAddr, err)
	}
	defer conn.Close()

	n := e.Chain.N()
	log := slog.With("component", "emitter", "node_id", e.NodeID)

	for ; e.i < n; e.i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ts := strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', -1, 64)
		w := e.Chain.At(n - e.i)
		payload := wire.BuildPayload(e.NodeID, ts, e.i)
		tag := wire.Tag(payload, w)
		datagram := wire.Encode(e.NodeID, ts, e.i, w, tag)

		if _, err := conn.Write(datagram); err != nil {
			return fmt.Errorf("send beat %d: %w", e.i, err)
		}
		log.Info("sent beat", "i", e.i, "of", n-1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	log.Info("chain exhausted")
	return ErrChainExhausted
}
