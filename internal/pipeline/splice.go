package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"unicode/utf8"

	"secsplice/internal/document"
	"secsplice/internal/git"
	"secsplice/internal/section"
	"secsplice/internal/storage"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrSourceSectionNotFound      = errors.New("source section not found")
	ErrDestinationSectionNotFound = errors.New("destination section not found")
	ErrDirtyDestination           = errors.New("destination has uncommitted changes")
)

// Job names one section to copy from Source into Dest.
type Job struct {
	Name   string
	Source string
	Dest   string
	Label  string
}

func (j Job) String() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Label
}

type Options struct {
	Pattern      section.Pattern
	DryRun       bool
	RequireClean bool // refuse to write a destination with uncommitted git changes
}

// Result describes what a run found and did.
type Result struct {
	Job         Job
	SourceRunes int
	SourceBytes int
	OldBody     string
	NewBody     string
	Changed     bool
	Written     bool
	Diff        string
	JournalID   int64
}

// Splicer copies labeled sections between documents. Status lines go to
// out; diagnostics go to the logger.
type Splicer struct {
	opts    Options
	logger  *zap.Logger
	out     io.Writer
	journal storage.Journal
}

// NewSplicer builds a Splicer. logger, out and journal may be nil.
func NewSplicer(opts Options, logger *zap.Logger, out io.Writer, journal storage.Journal) *Splicer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	opts.Pattern = opts.Pattern.WithDefaults()
	return &Splicer{
		opts:    opts,
		logger:  logger,
		out:     out,
		journal: journal,
	}
}

// Run performs one splice:
// READ_SOURCE -> EXTRACT -> READ_DEST -> LOCATE_IN_DEST -> REPLACE_AND_WRITE.
// Any failure ends the run; the destination is only opened for writing
// after both sections were found.
func (s *Splicer) Run(ctx context.Context, job Job) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("job", job.String()), zap.String("label", job.Label))
	res := &Result{Job: job}

	// 1. Source
	src, err := document.Load(job.Source)
	if err != nil {
		return nil, err
	}
	log.Debug("Loaded source", zap.String("path", src.Path), zap.Int("bytes", len(src.Text)))

	found, err := section.Extract(src.Text, job.Label, s.opts.Pattern)
	if err != nil {
		if errors.Is(err, section.ErrNotFound) {
			fmt.Fprintf(s.out, "❌ Could not find %s section in %s\n", job.Label, job.Source)
			return nil, fmt.Errorf("%w: %w", ErrSourceSectionNotFound, err)
		}
		return nil, err
	}
	res.NewBody = found.Body
	res.SourceRunes = utf8.RuneCountInString(found.Body)
	res.SourceBytes = len(found.Body)
	fmt.Fprintf(s.out, "🔍 Found %s section, length: %d (%s)\n",
		job.Label, res.SourceRunes, humanize.Bytes(uint64(res.SourceBytes)))
	s.warnDuplicates(log, src.Text, job.Label, src.Path)

	// 2. Destination
	dst, err := document.Load(job.Dest)
	if err != nil {
		return nil, err
	}

	spliced, old, err := section.Splice(dst.Text, job.Label, found.Body, s.opts.Pattern)
	if err != nil {
		if errors.Is(err, section.ErrNotFound) {
			fmt.Fprintf(s.out, "❌ Could not find %s section in %s\n", job.Label, job.Dest)
			return nil, fmt.Errorf("%w: %w", ErrDestinationSectionNotFound, err)
		}
		return nil, err
	}
	res.OldBody = old.Body
	res.Changed = spliced != dst.Text
	fmt.Fprintf(s.out, "📍 Found %s section in %s\n", job.Label, job.Dest)
	s.warnDuplicates(log, dst.Text, job.Label, dst.Path)

	if !res.Changed {
		fmt.Fprintf(s.out, "✅ %s section in %s is already up to date\n", job.Label, job.Dest)
		return res, nil
	}

	// 3. Write
	if s.opts.DryRun {
		res.Diff = unifiedDiff(dst.Path, dst.Text, spliced)
		fmt.Fprintf(s.out, "📝 Dry run: would replace %s section in %s (%s -> %s)\n",
			job.Label, job.Dest, humanize.Bytes(uint64(len(old.Body))), humanize.Bytes(uint64(len(found.Body))))
		return res, nil
	}

	if err := s.checkClean(dst.Path); err != nil {
		return nil, err
	}

	if err := dst.Save(spliced); err != nil {
		fmt.Fprintf(s.out, "❌ Failed to write %s\n", job.Dest)
		return nil, err
	}
	res.Written = true
	log.Info("Replaced section", zap.String("dest", dst.Path),
		zap.Int("old_bytes", len(old.Body)), zap.Int("new_bytes", len(found.Body)))

	res.JournalID = s.record(ctx, log, storage.Entry{
		Action:     storage.ActionSplice,
		Label:      section.Label(job.Label),
		SourcePath: absPath(job.Source),
		DestPath:   absPath(job.Dest),
		OldBody:    old.Body,
		NewBody:    found.Body,
	})

	fmt.Fprintf(s.out, "✅ Successfully replaced %s section in %s\n", job.Label, job.Dest)
	return res, nil
}

// RunAll runs jobs in order. A failed job does not stop the ones after it;
// the returned error combines every failure.
func (s *Splicer) RunAll(ctx context.Context, jobs []Job) ([]*Result, error) {
	var results []*Result
	var errs error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}
		res, err := s.Run(ctx, job)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job %s: %w", job, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

func (s *Splicer) warnDuplicates(log *zap.Logger, text, label, path string) {
	n, err := section.Count(text, label, s.opts.Pattern)
	if err != nil || n <= 1 {
		return
	}
	log.Warn("Label occurs more than once; only the first section is used",
		zap.String("path", path), zap.Int("occurrences", n))
}

func (s *Splicer) checkClean(path string) error {
	if !s.opts.RequireClean {
		return nil
	}
	dirty, err := git.IsDirty(path)
	if err != nil {
		return fmt.Errorf("failed to check git status of %s: %w", path, err)
	}
	if dirty {
		return fmt.Errorf("%w: %s", ErrDirtyDestination, path)
	}
	return nil
}

// record journals a completed write. The write already happened, so a
// journal failure is logged rather than returned.
func (s *Splicer) record(ctx context.Context, log *zap.Logger, e storage.Entry) int64 {
	if s.journal == nil {
		return 0
	}
	e.OldHash = bodyHash(e.OldBody)
	e.NewHash = bodyHash(e.NewBody)
	if sha, err := git.HeadCommit(filepath.Dir(e.DestPath)); err == nil {
		e.CommitSHA = sha
	} else {
		log.Debug("No git commit for journal entry", zap.Error(err))
	}

	id, err := s.journal.Record(ctx, e)
	if err != nil {
		log.Error("Failed to journal splice", zap.Error(err))
		return 0
	}
	return id
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
