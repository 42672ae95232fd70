package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/tagstream/internal/agent"
)

// ThreadStore is a SQLite agent.ThreadTracker.
type ThreadStore struct {
	db  *DB
	now func() time.Time
}

// NewThreadStore creates a thread store on db.
func NewThreadStore(db *DB) *ThreadStore {
	return &ThreadStore{db: db, now: time.Now}
}

func (s *ThreadStore) MarkActive(ctx context.Context, threadID, turnID string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO threads (thread_id, active, turn_id, updated_at) VALUES (?, 1, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET
			active = 1, turn_id = excluded.turn_id, updated_at = excluded.updated_at`,
		threadID, turnID, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("marking thread %s active: %w", threadID, err)
	}
	return nil
}

// MarkInactive records the final status of a turn. The row is left alone
// when a newer turn has taken over the thread since.
func (s *ThreadStore) MarkInactive(ctx context.Context, st agent.ThreadStatus) error {
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO threads (thread_id, active, state, model, attempts, turn_id, updated_at)
		VALUES (?, 0, ?, ?, ?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET
			active = 0,
			state = excluded.state,
			model = excluded.model,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at
		WHERE threads.turn_id = excluded.turn_id`,
		st.ThreadID, st.State, st.Model, st.Attempts, st.TurnID, formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("marking thread %s inactive: %w", st.ThreadID, err)
	}
	return nil
}

// Get returns the status of a thread, or nil if it is unknown.
func (s *ThreadStore) Get(ctx context.Context, threadID string) (*agent.ThreadStatus, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT thread_id, active, state, model, attempts, turn_id, updated_at
		FROM threads WHERE thread_id = ?`, threadID)
	st, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	return st, nil
}

// Active lists the threads with a turn in flight, most recent first. After
// an unclean shutdown these are the threads to resume.
func (s *ThreadStore) Active(ctx context.Context) ([]agent.ThreadStatus, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT thread_id, active, state, model, attempts, turn_id, updated_at
		FROM threads WHERE active = 1 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing active threads: %w", err)
	}
	defer rows.Close()

	var out []agent.ThreadStatus
	for rows.Next() {
		st, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThread(row scanner) (*agent.ThreadStatus, error) {
	var st agent.ThreadStatus
	var updated string
	if err := row.Scan(&st.ThreadID, &st.Active, &st.State, &st.Model, &st.Attempts, &st.TurnID, &updated); err != nil {
		return nil, err
	}
	st.UpdatedAt = parseTime(updated)
	return &st, nil
}
