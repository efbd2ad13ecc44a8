package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Journal = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS splices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			label TEXT NOT NULL,
			source_path TEXT,
			dest_path TEXT NOT NULL,
			old_body TEXT,
			new_body TEXT,
			old_hash TEXT,
			new_hash TEXT,
			commit_sha TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_splices_dest_label ON splices(dest_path, label);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Record(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Action == "" {
		e.Action = ActionSplice
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO splices (action, label, source_path, dest_path, old_body, new_body, old_hash, new_hash, commit_sha, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Action, e.Label, e.SourcePath, e.DestPath, e.OldBody, e.NewBody, e.OldHash, e.NewHash, e.CommitSHA,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to record splice: %w", err)
	}
	return res.LastInsertId()
}

const selectEntry = `SELECT id, action, label, source_path, dest_path, old_body, new_body, old_hash, new_hash, commit_sha, created_at FROM splices`

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any
	if f.DestPath != "" {
		where = append(where, "dest_path = ?")
		args = append(args, f.DestPath)
	}
	if f.Label != "" {
		where = append(where, "label = ?")
		args = append(args, f.Label)
	}

	q := selectEntry
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query splices: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Latest(ctx context.Context, destPath, label string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		selectEntry+" WHERE dest_path = ? AND label = ? AND action = ? ORDER BY id DESC LIMIT 1",
		destPath, label, ActionSplice)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s in %s", ErrNoEntry, label, destPath)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var source, oldBody, newBody, oldHash, newHash, commit sql.NullString
	var created string
	if err := row.Scan(&e.ID, &e.Action, &e.Label, &source, &e.DestPath, &oldBody, &newBody, &oldHash, &newHash, &commit, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan splice: %w", err)
	}
	e.SourcePath = source.String
	e.OldBody = oldBody.String
	e.NewBody = newBody.String
	e.OldHash = oldHash.String
	e.NewHash = newHash.String
	e.CommitSHA = commit.String

	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	e.CreatedAt = t
	return &e, nil
}
