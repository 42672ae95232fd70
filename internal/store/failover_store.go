package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/tagstream/internal/failover"
)

// Slot kinds in failover_blocks.
const (
	SlotCredential = "credential"
	SlotModel      = "model"
)

// Block is one blocked failover slot as stored in failover_blocks.
type Block struct {
	Kind         string    `json:"kind"`
	ID           string    `json:"id"`
	BlockedUntil time.Time `json:"blockedUntil"`
	FailureCount int       `json:"failureCount,omitempty"`
	Permanent    bool      `json:"permanent,omitempty"`
}

// FailoverStore implements failover.Persister. The whole snapshot is kept as
// JSON; blocked slots are also written as rows so they can be listed.
type FailoverStore struct {
	db *DB
}

// NewFailoverStore creates a failover store on db.
func NewFailoverStore(db *DB) *FailoverStore {
	return &FailoverStore{db: db}
}

// SaveFailover replaces the stored snapshot.
func (s *FailoverStore) SaveFailover(ctx context.Context, snap failover.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding failover snapshot: %w", err)
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin failover save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO failover_state (id, snapshot, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		string(data), formatTime(snap.TakenAt),
	); err != nil {
		return fmt.Errorf("saving failover snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM failover_blocks"); err != nil {
		return fmt.Errorf("clearing failover blocks: %w", err)
	}
	for _, b := range blocksOf(snap) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO failover_blocks (slot_kind, slot_id, blocked_until, failure_count, permanent)
			 VALUES (?, ?, ?, ?, ?)`,
			b.Kind, b.ID, formatTime(b.BlockedUntil), b.FailureCount, b.Permanent,
		); err != nil {
			return fmt.Errorf("saving %s block %s: %w", b.Kind, b.ID, err)
		}
	}
	return tx.Commit()
}

// LoadFailover returns the stored snapshot, or nil if none was saved.
func (s *FailoverStore) LoadFailover(ctx context.Context) (*failover.Snapshot, error) {
	var data string
	err := s.db.sql.QueryRowContext(ctx, "SELECT snapshot FROM failover_state WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading failover snapshot: %w", err)
	}

	var snap failover.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decoding failover snapshot: %w", err)
	}
	return &snap, nil
}

// Blocks lists the slots still blocked at now, credentials first.
func (s *FailoverStore) Blocks(ctx context.Context, now time.Time) ([]Block, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT slot_kind, slot_id, blocked_until, failure_count, permanent
		FROM failover_blocks
		ORDER BY slot_kind, blocked_until`)
	if err != nil {
		return nil, fmt.Errorf("listing failover blocks: %w", err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		var until string
		if err := rows.Scan(&b.Kind, &b.ID, &until, &b.FailureCount, &b.Permanent); err != nil {
			return nil, fmt.Errorf("scanning failover block: %w", err)
		}
		b.BlockedUntil = parseTime(until)
		if now.Before(b.BlockedUntil) {
			out = append(out, b)
		}
	}
	return out, rows.Err()
}

// Clear removes all persisted failover state.
func (s *FailoverStore) Clear(ctx context.Context) error {
	_, err := s.db.sql.ExecContext(ctx, "DELETE FROM failover_state; DELETE FROM failover_blocks;")
	if err != nil {
		return fmt.Errorf("clearing failover state: %w", err)
	}
	return nil
}

func blocksOf(snap failover.Snapshot) []Block {
	var out []Block
	for _, c := range snap.Credentials {
		if c.BlockedUntil.IsZero() {
			continue
		}
		out = append(out, Block{
			Kind:         SlotCredential,
			ID:           c.ID,
			BlockedUntil: c.BlockedUntil,
			FailureCount: c.FailureCount,
			Permanent:    c.Permanent,
		})
	}
	for _, m := range snap.Models {
		if m.BlockedUntil.IsZero() {
			continue
		}
		out = append(out, Block{Kind: SlotModel, ID: m.ID, BlockedUntil: m.BlockedUntil})
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
