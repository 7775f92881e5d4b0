package wire

import (
	"bytes"
	"testing"

	"heartchain/internal/chain"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	var w, tag [chain.Width]byte
	for i := range w {
		w[i] = byte(i)
	}
	payload := BuildPayload("SN000001", "1700000000.5", 3)
	tag = Tag(payload, w)

	data := Encode("SN000001", "1700000000.5", 3, w, tag)
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.NodeID != "SN000001" || got.TS != "1700000000.5" || got.I != 3 {
		t.Fatalf("parsed fields = %+v", got)
	}
	if got.W != w || got.Tag != tag {
		t.Fatalf("parsed w/tag mismatch")
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("payload mismatch: got %q want %q", got.Payload, payload)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	var w [chain.Width]byte
	payload := BuildPayload("SN1", "1.0", 1)
	tag := Tag(payload, w)
	valid := Encode("SN1", "1.0", 1, w, tag)

	tests := []struct {
		name string
		data []byte
	}{
		{"no separators", []byte("garbage")},
		{"missing field", []byte("SN1|1.0||" + string(w[:]) + "||" + string(tag[:]))},
		{"short w", bytes.Replace(valid, w[:], w[:len(w)-1], 1)},
		{"non-integer i", []byte("SN1|1.0|x||" + string(w[:]) + "||" + string(tag[:]))},
		{"empty node_id", []byte("|1.0|1||" + string(w[:]) + "||" + string(tag[:]))},
		{"negative i", []byte("SN1|1.0|-1||" + string(w[:]) + "||" + string(tag[:]))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.data)
			}
		})
	}
}
