package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory database that lives as long as the store.
const MemoryDSN = ":memory:"

// SQLiteStore keeps the sequence in a SQLite database. Insertion order is the
// autoincrement seq column; the public id is a separate unique text column.
type SQLiteStore struct {
	notifier

	db   *sql.DB
	opts options

	// addMu keeps CreatedAt order in step with seq order.
	addMu sync.Mutex
}

func NewSQLiteStore(ctx context.Context, dsn string, opts ...Option) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection keeps an in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLiteStore{db: db, opts: buildOptions(opts)}
	if err := s.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ApplyMigrations ensures schema exists
func (s *SQLiteStore) ApplyMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tasks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
	`)
	return err
}

func (s *SQLiteStore) Add(ctx context.Context, title, description string) (Task, error) {
	s.addMu.Lock()
	t := s.opts.newTask(title, description)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, completed, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, t.ID, t.Title, t.Description, t.CreatedAt.Format(time.RFC3339Nano))
	s.addMu.Unlock()
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	s.notify(Event{Kind: EventAdded, Task: t})
	return t, nil
}

func (s *SQLiteStore) Toggle(ctx context.Context, id string) error {
	t, found, err := s.mutate(ctx, id, `UPDATE tasks SET completed = 1 - completed WHERE id = ?`)
	if err != nil || !found {
		return err
	}
	t.Completed = !t.Completed

	s.notify(Event{Kind: EventToggled, Task: t})
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	t, found, err := s.mutate(ctx, id, `DELETE FROM tasks WHERE id = ?`)
	if err != nil || !found {
		return err
	}

	s.notify(Event{Kind: EventDeleted, Task: t})
	return nil
}

// mutate loads the task as it was before stmt and runs stmt in one transaction.
func (s *SQLiteStore) mutate(ctx context.Context, id, stmt string) (Task, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, title, description, completed, created_at
		FROM tasks
		WHERE id = ?
	`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}

	if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
		return Task{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, false, err
	}
	return t, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Task, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return applyFilter(all, f), nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	all, err := s.all(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(all, s.opts.now(), s.opts.window), nil
}

func (s *SQLiteStore) all(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, completed, created_at
		FROM tasks
		ORDER BY seq DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	var t Task
	var created string
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &created); err != nil {
		return Task{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Task{}, fmt.Errorf("parse created_at for task %s: %w", t.ID, err)
	}
	t.CreatedAt = ts
	return t, nil
}
