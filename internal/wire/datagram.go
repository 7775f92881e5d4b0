// Package wire encodes and parses the UDP heartbeat datagram described
// in spec.md §6:
//
//	payload || "||" || w || "||" || tag
//	node_id "|" ts_decimal "|" i_decimal
//
// payload is ASCII text; w and tag are raw Width-byte digests with no
// length prefix — the UDP datagram boundary delimits the message.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"heartchain/internal/chain"
)

// Sep is the two-octet separator between payload, w, and tag.
const Sep = "||"

// FieldSep separates the three payload fields (node_id, ts, i).
const FieldSep = "|"

// Datagram is a parsed, not-yet-authenticated heartbeat packet.
type Datagram struct {
	NodeID  string
	TS      string // advisory, kept as received text to avoid float round-trip drift
	I       int
	W       [chain.Width]byte
	Tag     [chain.Width]byte
	Payload []byte // exact bytes that were hashed into Tag
}

// Encode builds the wire bytes for a beat at index i, revealing pre-image
// w, timestamp ts (decimal fractional seconds), for node nodeID. tag is
// computed by the caller as H(payload || w) and passed in so Encode has
// no hashing dependency of its own.
func Encode(nodeID string, ts string, i int, w, tag [chain.Width]byte) []byte {
	payload := BuildPayload(nodeID, ts, i)
	out := make([]byte, 0, len(payload)+len(Sep)*2+chain.Width*2)
	out = append(out, payload...)
	out = append(out, Sep...)
	out = append(out, w[:]...)
	out = append(out, Sep...)
	out = append(out, tag[:]...)
	return out
}

// BuildPayload constructs the payload segment "node_id|ts|i" as bytes.
func BuildPayload(nodeID string, ts string, i int) []byte {
	return []byte(nodeID + FieldSep + ts + FieldSep + strconv.Itoa(i))
}

// Parse splits a raw datagram into its three segments and validates
// shape. Any mismatch (wrong segment count, wrong field count, bad
// digest widths, non-integer i) returns an error — callers should treat
// this as the MALFORMED drop kind.
func Parse(data []byte) (Datagram, error) {
	// w and tag are raw digests that may themselves contain '|', so they
	// are located by fixed offset from the end of the datagram rather
	// than by searching for Sep.
	const trailer = len(Sep) + chain.Width + len(Sep) + chain.Width
	raw := string(data)
	if len(raw) < trailer {
		return Datagram{}, fmt.Errorf("datagram is %d bytes, shorter than the %d-byte w/tag trailer", len(raw), trailer)
	}
	payloadStr, rest := raw[:len(raw)-trailer], raw[len(raw)-trailer:]
	if rest[:len(Sep)] != Sep || rest[len(Sep)+chain.Width:len(rest)-chain.Width] != Sep {
		return Datagram{}, fmt.Errorf("expected 3 segments separated by %q", Sep)
	}
	wStr, tagStr := rest[len(Sep):len(Sep)+chain.Width], rest[len(rest)-chain.Width:]

	fields := strings.Split(payloadStr, FieldSep)
	if len(fields) != 3 {
		return Datagram{}, fmt.Errorf("expected 3 payload fields separated by %q, got %d", FieldSep, len(fields))
	}
	nodeID, ts, iStr := fields[0], fields[1], fields[2]
	if nodeID == "" {
		return Datagram{}, fmt.Errorf("empty node_id")
	}
	i, err := strconv.Atoi(iStr)
	if err != nil || i < 0 {
		return Datagram{}, fmt.Errorf("invalid index %q: %w", iStr, err)
	}

	var w, tag [chain.Width]byte
	copy(w[:], wStr)
	copy(tag[:], tagStr)

	return Datagram{
		NodeID:  nodeID,
		TS:      ts,
		I:       i,
		W:       w,
		Tag:     tag,
		Payload: []byte(payloadStr),
	}, nil
}

// Tag computes H(payload || w), the authenticator binding message
// fields to the revealed pre-image.
func Tag(payload []byte, w [chain.Width]byte) [chain.Width]byte {
	buf := make([]byte, 0, len(payload)+chain.Width)
	buf = append(buf, payload...)
	buf = append(buf, w[:]...)
	return chain.H(buf)
}
