package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound is returned by Load when a thread has no checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

// Snapshot is the persisted form of one thread's workflow state.
type Snapshot struct {
	ThreadID  string
	Version   int
	Status    string
	Node      string // node the run resumes at
	From      string // node that produced this snapshot, empty on creation
	Data      []byte
	UpdatedAt time.Time
}

// ThreadInfo summarises a stored thread without its state payload.
type ThreadInfo struct {
	ThreadID  string
	Status    string
	Node      string
	UpdatedAt time.Time
}

// Transition is one recorded node-to-node step of a thread.
type Transition struct {
	From string
	To   string
	At   time.Time
}

// CheckpointStore persists workflow snapshots in SQLite, keyed by thread id.
type CheckpointStore struct {
	DB *sql.DB
}

func NewCheckpointStore(dbPath string) (*CheckpointStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// One writer keeps per-thread writes strictly ordered.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			status TEXT NOT NULL,
			node TEXT NOT NULL,
			state BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			from_node TEXT NOT NULL,
			to_node TEXT NOT NULL,
			at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_thread ON transitions(thread_id, id);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &CheckpointStore{DB: db}, nil
}

func (s *CheckpointStore) Close() error {
	return s.DB.Close()
}

// Save upserts the snapshot and, when snap.From is set, records the
// transition in the same transaction.
func (s *CheckpointStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO checkpoints (thread_id, version, status, node, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			version = excluded.version,
			status = excluded.status,
			node = excluded.node,
			state = excluded.state,
			updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, query, snap.ThreadID, snap.Version, snap.Status, snap.Node, snap.Data, snap.UpdatedAt); err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", snap.ThreadID, err)
	}

	if snap.From != "" {
		query = `INSERT INTO transitions (thread_id, from_node, to_node, at) VALUES (?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, query, snap.ThreadID, snap.From, snap.Node, snap.UpdatedAt); err != nil {
			return fmt.Errorf("recording transition for %s: %w", snap.ThreadID, err)
		}
	}

	return tx.Commit()
}

func (s *CheckpointStore) Load(ctx context.Context, threadID string) (Snapshot, error) {
	query := `SELECT version, status, node, state, updated_at FROM checkpoints WHERE thread_id = ?`
	snap := Snapshot{ThreadID: threadID}
	err := s.DB.QueryRowContext(ctx, query, threadID).Scan(&snap.Version, &snap.Status, &snap.Node, &snap.Data, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading checkpoint %s: %w", threadID, err)
	}
	return snap, nil
}

// Delete removes a thread's checkpoint and its transition log. A thread
// without a checkpoint is ErrNotFound.
func (s *CheckpointStore) Delete(ctx context.Context, threadID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transitions WHERE thread_id = ?`, threadID); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns stored threads, most recently updated first. An empty status
// lists every thread.
func (s *CheckpointStore) List(ctx context.Context, status string) ([]ThreadInfo, error) {
	query := `SELECT thread_id, status, node, updated_at FROM checkpoints`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []ThreadInfo
	for rows.Next() {
		var info ThreadInfo
		if err := rows.Scan(&info.ThreadID, &info.Status, &info.Node, &info.UpdatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, info)
	}
	return threads, rows.Err()
}

// Transitions returns the recorded node transitions of a thread in order.
func (s *CheckpointStore) Transitions(ctx context.Context, threadID string) ([]Transition, error) {
	query := `SELECT from_node, to_node, at FROM transitions WHERE thread_id = ? ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.From, &tr.To, &tr.At); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
