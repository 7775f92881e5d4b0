package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"heartchain/internal/chain"
	"heartchain/internal/model"

	_ "modernc.org/sqlite"
)

// Schema is the SQL DDL for node_keys and heartbeat_state, applied on
// open. Embedding it (rather than hand-running CREATE TABLE strings
// inline) mirrors the teacher's infra/store.Schema convention.
//
//go:embed schema.sql
var Schema string

const timeLayout = time.RFC3339Nano

// SQLite is a Store backed by an embedded, file-resident SQLite
// database — the concrete substitute for the abstract wide-column
// store named in spec.md §4.6 (see DESIGN.md for the rationale).
type SQLite struct {
	db *sql.DB
}

// Open creates or opens a SQLite-backed Store at path, applying the
// schema and WAL/busy-timeout pragmas the way the teacher's
// infra/sqlite.Open does for its local store.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

var _ Store = (*SQLite)(nil)

// UpsertAnchor inserts or overwrites a node's anchor record.
func (s *SQLite) UpsertAnchor(ctx context.Context, rec model.AnchorRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO node_keys (node_id, anchor, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET anchor = excluded.anchor, created_at = excluded.created_at`,
		rec.NodeID, rec.Anchor[:], rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert anchor %s: %w", rec.NodeID, err)
	}
	return nil
}

// GetAnchor looks up a node's current anchor.
func (s *SQLite) GetAnchor(ctx context.Context, nodeID string) (model.AnchorRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT node_id, anchor, created_at FROM node_keys WHERE node_id = ?`, nodeID)

	var id, createdAt string
	var anchorBytes []byte
	if err := row.Scan(&id, &anchorBytes, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return model.AnchorRecord{}, false, nil
		}
		return model.AnchorRecord{}, false, fmt.Errorf("get anchor %s: %w", nodeID, err)
	}

	rec, err := decodeAnchorRow(id, anchorBytes, createdAt)
	if err != nil {
		return model.AnchorRecord{}, false, fmt.Errorf("get anchor %s: %w", nodeID, err)
	}
	return rec, true, nil
}

// UpsertHeartbeat inserts or overwrites a node's heartbeat state.
func (s *SQLite) UpsertHeartbeat(ctx context.Context, hb model.HeartbeatState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heartbeat_state (node_id, last_i, last_ts, status, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET
		   last_i = excluded.last_i, last_ts = excluded.last_ts,
		   status = excluded.status, updated_at = excluded.updated_at`,
		hb.NodeID, hb.LastIndex, hb.LastSeen.UTC().Format(timeLayout), hb.Status.String(), hb.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert heartbeat %s: %w", hb.NodeID, err)
	}
	return nil
}

// GetHeartbeat looks up a node's current heartbeat state.
func (s *SQLite) GetHeartbeat(ctx context.Context, nodeID string) (model.HeartbeatState, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT node_id, last_i, last_ts, status, updated_at FROM heartbeat_state WHERE node_id = ?`, nodeID)
	hb, ok, err := scanHeartbeatRow(row)
	if err != nil {
		return model.HeartbeatState{}, false, fmt.Errorf("get heartbeat %s: %w", nodeID, err)
	}
	return hb, ok, nil
}

// ScanAll returns every heartbeat_state row, used to warm the cache.
func (s *SQLite) ScanAll(ctx context.Context) ([]model.HeartbeatState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, last_i, last_ts, status, updated_at FROM heartbeat_state`)
	if err != nil {
		return nil, fmt.Errorf("scan all heartbeat state: %w", err)
	}
	defer rows.Close()

	var out []model.HeartbeatState
	for rows.Next() {
		var id, lastTS, status, updatedAt string
		var lastI int
		if err := rows.Scan(&id, &lastI, &lastTS, &status, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan all heartbeat state: %w", err)
		}
		hb, err := decodeHeartbeatFields(id, lastI, lastTS, status, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan all heartbeat state: %w", err)
		}
		out = append(out, hb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan all heartbeat state: %w", err)
	}
	return out, nil
}

// ScanAnchors returns every node_keys row as node_id -> anchor.
func (s *SQLite) ScanAnchors(ctx context.Context) (map[string][chain.Width]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_id, anchor FROM node_keys`)
	if err != nil {
		return nil, fmt.Errorf("scan anchors: %w", err)
	}
	defer rows.Close()

	out := make(map[string][chain.Width]byte)
	for rows.Next() {
		var id string
		var anchorBytes []byte
		if err := rows.Scan(&id, &anchorBytes); err != nil {
			return nil, fmt.Errorf("scan anchors: %w", err)
		}
		if len(anchorBytes) != chain.Width {
			return nil, fmt.Errorf("scan anchors: %s has width %d, want %d", id, len(anchorBytes), chain.Width)
		}
		var anchor [chain.Width]byte
		copy(anchor[:], anchorBytes)
		out[id] = anchor
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan anchors: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHeartbeatRow(row scanner) (model.HeartbeatState, bool, error) {
	var id, lastTS, status, updatedAt string
	var lastI int
	if err := row.Scan(&id, &lastI, &lastTS, &status, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return model.HeartbeatState{}, false, nil
		}
		return model.HeartbeatState{}, false, err
	}
	hb, err := decodeHeartbeatFields(id, lastI, lastTS, status, updatedAt)
	if err != nil {
		return model.HeartbeatState{}, false, err
	}
	return hb, true, nil
}

func decodeAnchorRow(nodeID string, anchorBytes []byte, createdAt string) (model.AnchorRecord, error) {
	if len(anchorBytes) != chain.Width {
		return model.AnchorRecord{}, fmt.Errorf("anchor for %s has width %d, want %d", nodeID, len(anchorBytes), chain.Width)
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return model.AnchorRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	var anchor [chain.Width]byte
	copy(anchor[:], anchorBytes)
	return model.AnchorRecord{NodeID: nodeID, Anchor: anchor, CreatedAt: t}, nil
}

func decodeHeartbeatFields(nodeID string, lastI int, lastTS, status, updatedAt string) (model.HeartbeatState, error) {
	st, err := model.ParseStatus(status)
	if err != nil {
		return model.HeartbeatState{}, fmt.Errorf("parse status for %s: %w", nodeID, err)
	}
	var lastSeen time.Time
	if lastTS != "" {
		lastSeen, err = time.Parse(timeLayout, lastTS)
		if err != nil {
			return model.HeartbeatState{}, fmt.Errorf("parse last_ts for %s: %w", nodeID, err)
		}
	}
	updated, err := time.Parse(timeLayout, updatedAt)
	if err != nil {
		return model.HeartbeatState{}, fmt.Errorf("parse updated_at for %s: %w", nodeID, err)
	}
	return model.HeartbeatState{
		NodeID:    nodeID,
		LastIndex: lastI,
		LastSeen:  lastSeen,
		Status:    st,
		UpdatedAt: updated,
	}, nil
}
