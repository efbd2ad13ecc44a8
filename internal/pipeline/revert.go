package pipeline

import (
	"context"
	"errors"
	"fmt"

	"secsplice/internal/document"
	"secsplice/internal/section"
	"secsplice/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrNoJournal = errors.New("journal is not configured")

	// ErrDrift means the destination section no longer holds the body the
	// journal says was written.
	ErrDrift = errors.New("destination section changed since it was journaled")
)

// Revert restores the body a section had before its latest journaled splice.
// Reverts are journaled but never reverted themselves, so running Revert
// twice leaves the section at the pre-splice body. Unless force is set, the
// current body must still match what the splice wrote.
func (s *Splicer) Revert(ctx context.Context, dest, label string, force bool) (*Result, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	log := s.logger.With(zap.String("label", label), zap.String("dest", dest))
	res := &Result{Job: Job{Name: "revert", Dest: dest, Label: label}}

	entry, err := s.journal.Latest(ctx, absPath(dest), section.Label(label))
	if err != nil {
		return nil, err
	}

	dst, err := document.Load(dest)
	if err != nil {
		return nil, err
	}

	spliced, current, err := section.Splice(dst.Text, label, entry.OldBody, s.opts.Pattern)
	if err != nil {
		if errors.Is(err, section.ErrNotFound) {
			fmt.Fprintf(s.out, "❌ Could not find %s section in %s\n", label, dest)
			return nil, fmt.Errorf("%w: %w", ErrDestinationSectionNotFound, err)
		}
		return nil, err
	}

	res.OldBody = current.Body
	res.NewBody = entry.OldBody
	res.Changed = spliced != dst.Text
	if !res.Changed {
		fmt.Fprintf(s.out, "✅ %s section in %s already holds the previous body\n", label, dest)
		return res, nil
	}
	if current.Body != entry.NewBody && !force {
		return nil, fmt.Errorf("%w: %s in %s (journal entry %d)", ErrDrift, label, dest, entry.ID)
	}

	if s.opts.DryRun {
		res.Diff = unifiedDiff(dst.Path, dst.Text, spliced)
		fmt.Fprintf(s.out, "📝 Dry run: would revert %s section in %s to journal entry %d\n", label, dest, entry.ID)
		return res, nil
	}

	if err := s.checkClean(dst.Path); err != nil {
		return nil, err
	}
	if err := dst.Save(spliced); err != nil {
		return nil, err
	}
	res.Written = true

	res.JournalID = s.record(ctx, log, storage.Entry{
		Action:     storage.ActionRevert,
		Label:      section.Label(label),
		SourcePath: entry.DestPath,
		DestPath:   entry.DestPath,
		OldBody:    current.Body,
		NewBody:    entry.OldBody,
	})

	fmt.Fprintf(s.out, "⏪ Reverted %s section in %s (journal entry %d)\n", label, dest, entry.ID)
	return res, nil
}
