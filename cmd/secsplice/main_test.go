package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"secsplice/internal/pipeline"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSource = "{\n  \"Topic A\": [{\"q\":1}],\n  \"Topic B\": [{\"q\":2}],\n}\n"
	testDest   = "{\n  \"Topic A\": [{\"q\":99}],\n  \"Topic B\": [{\"q\":2}],\n}\n"
)

type workspace struct {
	dir, source, dest, config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:    dir,
		source: filepath.Join(dir, "restored.js"),
		dest:   filepath.Join(dir, "script.js"),
		config: filepath.Join(dir, "secsplice.yaml"),
	}
	require.NoError(t, os.WriteFile(w.source, []byte(testSource), 0644))
	require.NoError(t, os.WriteFile(w.dest, []byte(testDest), 0644))
	return w
}

func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", w.config, "--log-level", "off"}, args...)...)
}

// execute runs rootCmd the way main does, starting from default flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	closeResources()
	return stdout.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func (w *workspace) readDest(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(w.dest)
	require.NoError(t, err)
	return string(data)
}

func TestSpliceCommand(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "splice", "-s", w.source, "-d", w.dest, "-l", "Topic A")
	require.NoError(t, err)

	assert.Equal(t, testSource, w.readDest(t))
	assert.Contains(t, out, "Found Topic A section, length: 7")
	assert.Contains(t, out, "Successfully replaced Topic A section in "+w.dest)
}

func TestSpliceCommand_DryRunPrintsDiff(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "splice", "-n", "-s", w.source, "-d", w.dest, "-l", "Topic A")
	require.NoError(t, err)

	assert.Equal(t, testDest, w.readDest(t))
	assert.Contains(t, out, `-  "Topic A": [{"q":99}],`)
	assert.Contains(t, out, `+  "Topic A": [{"q":1}],`)
}

func TestSpliceCommand_MissingSectionFails(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "splice", "-s", w.source, "-d", w.dest, "-l", "Topic C")
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrSourceSectionNotFound)
	assert.Contains(t, out, "Could not find Topic C section")
	assert.Equal(t, testDest, w.readDest(t))
}

func TestSpliceCommand_UsesConfigDefaults(t *testing.T) {
	w := newWorkspace(t)
	yml := "splice:\n  source: " + w.source + "\n  dest: " + w.dest + "\n  label: Topic A\n"
	require.NoError(t, os.WriteFile(w.config, []byte(yml), 0644))

	_, err := w.run(t, "splice")
	require.NoError(t, err)
	assert.Equal(t, testSource, w.readDest(t))
}

func TestExtractCommand(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "extract", "-s", w.source, `"Topic A"`)
	require.NoError(t, err)
	assert.Equal(t, `{"q":1}`, out)
}

func TestCheckCommand(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "check", "-s", w.source, "-d", w.dest, "-l", "Topic A")
	assert.ErrorIs(t, err, errOutOfDate)
	assert.Equal(t, testDest, w.readDest(t))

	_, err = w.run(t, "splice", "-s", w.source, "-d", w.dest, "-l", "Topic A")
	require.NoError(t, err)

	out, err := w.run(t, "check", "-s", w.source, "-d", w.dest, "-l", "Topic A")
	require.NoError(t, err)
	assert.Contains(t, out, "already up to date")
}

func TestRunHistoryRevert(t *testing.T) {
	w := newWorkspace(t)
	journal := filepath.Join(w.dir, "journal.db")
	yml := "splice:\n" +
		"  source: " + w.source + "\n" +
		"  dest: " + w.dest + "\n" +
		"journal:\n" +
		"  path: " + journal + "\n" +
		"jobs:\n" +
		"  - label: Topic A\n" +
		"  - name: missing\n" +
		"    label: Topic Z\n"
	require.NoError(t, os.WriteFile(w.config, []byte(yml), 0644))

	out, err := w.run(t, "run")
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrSourceSectionNotFound)
	assert.Contains(t, err.Error(), "job missing")
	assert.Contains(t, out, "1/2 jobs succeeded, 1 files written")
	assert.Equal(t, testSource, w.readDest(t))

	out, err = w.run(t, "history", "-d", w.dest)
	require.NoError(t, err)
	assert.Contains(t, out, "splice")
	assert.Contains(t, out, "Topic A")

	_, err = w.run(t, "revert", "-d", w.dest, "-l", "Topic A")
	require.NoError(t, err)
	assert.Equal(t, testDest, w.readDest(t))

	out, err = w.run(t, "history", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "revert")
}

func TestHistoryCommand_RequiresJournal(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "history")
	assert.ErrorIs(t, err, pipeline.ErrNoJournal)
}

func TestRunCommand_NoJobs(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "run")
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	w := newWorkspace(t)

	_, err := execute(t, "--config", w.config, "--log-level", "chatty", "splice")
	assert.Error(t, err)
	assert.Equal(t, testDest, w.readDest(t))
}

func TestFlagsDoNotLeakBetweenRuns(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "splice", "-n", "-s", w.source, "-d", w.dest, "-l", "Topic A")
	require.NoError(t, err)
	assert.Equal(t, testDest, w.readDest(t))

	_, err = w.run(t, "splice", "-s", w.source, "-d", w.dest, "-l", "Topic A")
	require.NoError(t, err)
	assert.Equal(t, testSource, w.readDest(t))
}

func TestTerminatorFlagDocumentsLimitation(t *testing.T) {
	for _, cmd := range []*cobra.Command{spliceCmd, extractCmd, checkCmd, revertCmd} {
		flag := cmd.Flags().Lookup("terminator")
		require.NotNil(t, flag, cmd.Name())
		assert.Contains(t, flag.Usage, "needs a following quoted key", cmd.Name())
		assert.Contains(t, flag.Usage, "// comment", cmd.Name())
	}
}

func TestHistoryCommand_QuotedLabelFilter(t *testing.T) {
	w := newWorkspace(t)
	db := filepath.Join(w.dir, "journal.db")

	_, err := w.run(t, "--journal", db, "splice", "-s", w.source, "-d", w.dest, "-l", `"Topic A"`)
	require.NoError(t, err)

	out, err := w.run(t, "--journal", db, "history", "-l", "Topic A")
	require.NoError(t, err)
	assert.Contains(t, out, "splice")
	assert.NotContains(t, out, "No splices recorded.")

	out, err = w.run(t, "--journal", db, "history", "-l", `"Topic A"`)
	require.NoError(t, err)
	assert.NotContains(t, out, "No splices recorded.")

	_, err = w.run(t, "--journal", db, "revert", "-d", w.dest, "-l", "Topic A")
	require.NoError(t, err)
	assert.Equal(t, testDest, w.readDest(t))
}
