package main

import (
	"fmt"
	"os"

	"secsplice/internal/config"
	"secsplice/internal/logging"
	"secsplice/internal/pipeline"
	"secsplice/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootCmd = &cobra.Command{
		Use:   "secsplice",
		Short: "Copy a labeled section from one text file into another",
		Long: `secsplice copies the body of a labeled, bracket-delimited section
(for example "General Chemistry": [ ... ]) from a source file into the
section with the same label in a destination file. Only the bytes of the
destination section's body change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: initApp,
	}

	configPath  string
	logLevel    string
	journalPath string

	// Set by initApp for the running command.
	cfg     *config.Config
	logger  *zap.Logger
	journal *storage.SQLiteStore
)

func main() {
	err := rootCmd.Execute()
	closeResources()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "Path to the SQLite splice journal (disabled when empty)")

	rootCmd.AddCommand(spliceCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(revertCmd)
}

// initApp loads the config, then builds the logger and opens the journal.
func initApp(cmd *cobra.Command, args []string) error {
	c, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		c.Log.Level = logLevel
	}
	if cmd.Flags().Changed("journal") {
		c.Journal.Path = journalPath
	}
	cfg = c

	l, err := logging.New(c.Log.Level)
	if err != nil {
		return err
	}
	logger = l
	zap.ReplaceGlobals(logger)

	if c.Journal.Path != "" {
		j, err := storage.NewSQLiteStore(c.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal %s: %w", c.Journal.Path, err)
		}
		journal = j
		logger.Debug("Journal opened", zap.String("path", c.Journal.Path))
	}
	return nil
}

func closeResources() {
	if journal != nil {
		if err := journal.Close(); err != nil && logger != nil {
			logger.Warn("Failed to close journal", zap.Error(err))
		}
		journal = nil
	}
	if logger != nil {
		_ = logger.Sync()
		logger = nil
	}
	cfg = nil
}

// newSplicer wires config, logger and journal into a pipeline.Splicer.
func newSplicer(cmd *cobra.Command, opts pipeline.Options) *pipeline.Splicer {
	var j storage.Journal
	if journal != nil {
		j = journal
	}
	return pipeline.NewSplicer(opts, logger, cmd.OutOrStdout(), j)
}
