package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNoEntry is returned when the journal has no matching record.
var ErrNoEntry = errors.New("no journal entry")

const (
	ActionSplice = "splice"
	ActionRevert = "revert"
)

// Entry records one write to a destination section.
type Entry struct {
	ID         int64
	Action     string
	Label      string
	SourcePath string
	DestPath   string
	OldBody    string
	NewBody    string
	OldHash    string
	NewHash    string
	CommitSHA  string
	CreatedAt  time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	DestPath string
	Label    string
	Limit    int
}

// Journal persists splice history so a write can be inspected or undone.
type Journal interface {
	// Record appends an entry and returns its ID.
	Record(ctx context.Context, e Entry) (int64, error)

	// List returns entries newest first.
	List(ctx context.Context, f Filter) ([]Entry, error)

	// Latest returns the newest splice entry for a destination section.
	// Revert entries are skipped.
	Latest(ctx context.Context, destPath, label string) (*Entry, error)

	Close() error
}
