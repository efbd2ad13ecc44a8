package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"secsplice/internal/config"
	"secsplice/internal/document"
	"secsplice/internal/pipeline"
	"secsplice/internal/section"
	"secsplice/internal/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var errOutOfDate = errors.New("destination is out of date")

// jobFlags are the per-invocation overrides of the config's splice block.
type jobFlags struct {
	source, dest, label     string
	open, close, terminator string
	dryRun, requireClean    bool
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.source, "source", "s", "", "Source file to copy the section from")
	cmd.Flags().StringVarP(&f.dest, "dest", "d", "", "Destination file to update in place")
	cmd.Flags().StringVarP(&f.label, "label", "l", "", "Section label (quotes optional)")
	f.registerPattern(cmd)
	cmd.Flags().BoolVar(&f.requireClean, "require-clean", false, "Refuse to write a destination with uncommitted git changes")
}

func (f *jobFlags) registerPattern(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.open, "open", "", "Opening bracket of a section (default \"[\")")
	cmd.Flags().StringVar(&f.close, "close", "", "Closing bracket of a section (default \"]\")")
	cmd.Flags().StringVar(&f.terminator, "terminator", "",
		"Regexp that must follow the closing bracket (default ,\\s*\" which needs a following quoted key, "+
			"so the last section of a list or one followed by a // comment is not found; try ,\\s*(//|\") or ,)")
}

func (f *jobFlags) job(cfg *config.Config) pipeline.Job {
	j := pipeline.Job{
		Source: cfg.Splice.Source,
		Dest:   cfg.Splice.Dest,
		Label:  cfg.Splice.Label,
	}
	if f.source != "" {
		j.Source = f.source
	}
	if f.dest != "" {
		j.Dest = f.dest
	}
	if f.label != "" {
		j.Label = f.label
	}
	return j
}

func (f *jobFlags) pattern(cfg *config.Config) (section.Pattern, error) {
	p := cfg.Pattern
	if f.open != "" {
		p.Open = f.open
	}
	if f.close != "" {
		p.Close = f.close
	}
	if f.terminator != "" {
		p.Terminator = f.terminator
	}
	p = p.WithDefaults()
	return p, p.Validate()
}

var (
	spliceFlags  jobFlags
	extractFlags jobFlags
	checkFlags   jobFlags
	revertFlags  jobFlags
	revertForce  bool

	runDryRun       bool
	runRequireClean bool

	historyDest  string
	historyLabel string
	historyLimit int
)

func init() {
	spliceFlags.register(spliceCmd)
	spliceCmd.Flags().BoolVarP(&spliceFlags.dryRun, "dry-run", "n", false, "Show the diff without writing")

	extractCmd.Flags().StringVarP(&extractFlags.source, "source", "s", "", "Source file to read")
	extractCmd.Flags().StringVarP(&extractFlags.label, "label", "l", "", "Section label (quotes optional)")
	extractFlags.registerPattern(extractCmd)

	checkCmd.Flags().StringVarP(&checkFlags.source, "source", "s", "", "Source file to copy the section from")
	checkCmd.Flags().StringVarP(&checkFlags.dest, "dest", "d", "", "Destination file to compare")
	checkCmd.Flags().StringVarP(&checkFlags.label, "label", "l", "", "Section label (quotes optional)")
	checkFlags.registerPattern(checkCmd)

	runCmd.Flags().BoolVarP(&runDryRun, "dry-run", "n", false, "Show diffs without writing")
	runCmd.Flags().BoolVar(&runRequireClean, "require-clean", false, "Refuse to write destinations with uncommitted git changes")

	historyCmd.Flags().StringVarP(&historyDest, "dest", "d", "", "Only show splices into this file")
	historyCmd.Flags().StringVarP(&historyLabel, "label", "l", "", "Only show splices of this label")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of entries (0 for all)")

	revertCmd.Flags().StringVarP(&revertFlags.dest, "dest", "d", "", "Destination file to restore")
	revertCmd.Flags().StringVarP(&revertFlags.label, "label", "l", "", "Section label (quotes optional)")
	revertFlags.registerPattern(revertCmd)
	revertCmd.Flags().BoolVarP(&revertFlags.dryRun, "dry-run", "n", false, "Show the diff without writing")
	revertCmd.Flags().BoolVar(&revertFlags.requireClean, "require-clean", false, "Refuse to write a destination with uncommitted git changes")
	revertCmd.Flags().BoolVar(&revertForce, "force", false, "Revert even if the section changed since the splice")
}

var spliceCmd = &cobra.Command{
	Use:   "splice",
	Short: "Replace a section of the destination with the same section of the source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &spliceFlags
		p, err := f.pattern(cfg)
		if err != nil {
			return err
		}
		s := newSplicer(cmd, pipeline.Options{Pattern: p, DryRun: f.dryRun, RequireClean: f.requireClean})
		res, err := s.Run(cmd.Context(), f.job(cfg))
		if err != nil {
			return err
		}
		if f.dryRun && res.Diff != "" {
			fmt.Fprint(cmd.OutOrStdout(), res.Diff)
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [label]",
	Short: "Print the body of a section of the source file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &extractFlags
		if len(args) > 0 {
			f.label = args[0]
		}
		p, err := f.pattern(cfg)
		if err != nil {
			return err
		}
		job := f.job(cfg)

		doc, err := document.Load(job.Source)
		if err != nil {
			return err
		}
		sec, err := section.Extract(doc.Text, job.Label, p)
		if err != nil {
			return fmt.Errorf("%w: %w", pipeline.ErrSourceSectionNotFound, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), sec.Body)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Exit non-zero when the destination section differs from the source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &checkFlags
		p, err := f.pattern(cfg)
		if err != nil {
			return err
		}
		s := newSplicer(cmd, pipeline.Options{Pattern: p, DryRun: true})
		job := f.job(cfg)
		res, err := s.Run(cmd.Context(), job)
		if err != nil {
			return err
		}
		if res.Changed {
			fmt.Fprint(cmd.OutOrStdout(), res.Diff)
			return fmt.Errorf("%w: %s section in %s", errOutOfDate, job.Label, job.Dest)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every job listed in the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Jobs) == 0 {
			return fmt.Errorf("no jobs configured in %s", configPath)
		}
		jobs := make([]pipeline.Job, 0, len(cfg.Jobs))
		for _, j := range cfg.Jobs {
			jobs = append(jobs, pipeline.Job{Name: j.Name, Source: j.Source, Dest: j.Dest, Label: j.Label})
		}

		s := newSplicer(cmd, pipeline.Options{Pattern: cfg.Pattern, DryRun: runDryRun, RequireClean: runRequireClean})
		results, err := s.RunAll(cmd.Context(), jobs)

		written := 0
		for _, res := range results {
			if res.Written {
				written++
			}
			if runDryRun && res.Diff != "" {
				fmt.Fprint(cmd.OutOrStdout(), res.Diff)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📊 %d/%d jobs succeeded, %d files written\n", len(results), len(jobs), written)
		return err
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journaled splices, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if journal == nil {
			return pipeline.ErrNoJournal
		}
		f := storage.Filter{Limit: historyLimit}
		if historyLabel != "" {
			f.Label = section.Label(historyLabel)
		}
		if historyDest != "" {
			abs, err := filepath.Abs(historyDest)
			if err != nil {
				return err
			}
			f.DestPath = abs
		}
		entries, err := journal.List(cmd.Context(), f)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No splices recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTION\tLABEL\tDEST\tSIZE\tCOMMIT\tWHEN")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s -> %s\t%s\t%s\n",
				e.ID, e.Action, e.Label, e.DestPath,
				humanize.Bytes(uint64(len(e.OldBody))), humanize.Bytes(uint64(len(e.NewBody))),
				shortSHA(e.CommitSHA), humanize.Time(e.CreatedAt))
		}
		return w.Flush()
	},
}

var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Restore a section to its body before the last journaled splice",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &revertFlags
		p, err := f.pattern(cfg)
		if err != nil {
			return err
		}
		job := f.job(cfg)
		s := newSplicer(cmd, pipeline.Options{Pattern: p, DryRun: f.dryRun, RequireClean: f.requireClean})
		res, err := s.Revert(cmd.Context(), job.Dest, job.Label, revertForce)
		if err != nil {
			return err
		}
		if f.dryRun && res.Diff != "" {
			fmt.Fprint(cmd.OutOrStdout(), res.Diff)
		}
		return nil
	},
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	if sha == "" {
		return "-"
	}
	return sha
}
