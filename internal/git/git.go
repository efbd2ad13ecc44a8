package git

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ChangedFile is one entry of `git status --porcelain`.
type ChangedFile struct {
	Path   string
	Status string // two-letter XY code, e.g. " M", "??"
}

// HeadCommit returns the commit HEAD points at in the repository containing dir.
func HeadCommit(dir string) (string, error) {
	cmd := exec.Command("git", "-C", dir, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// FileStatus reports uncommitted changes to path. An empty result means the
// file is clean (or ignored).
func FileStatus(path string) ([]ChangedFile, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	cmd := exec.Command("git", "-C", dir, "status", "--porcelain", "--", base)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}
	return parsePorcelain(output), nil
}

// IsDirty is FileStatus reduced to a yes/no answer.
func IsDirty(path string) (bool, error) {
	changes, err := FileStatus(path)
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}

func parsePorcelain(output []byte) []ChangedFile {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	var changes []ChangedFile

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		// Renames are reported as "old -> new"; we want the new path.
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+len(" -> "):]
		}
		changes = append(changes, ChangedFile{
			Path:   strings.Trim(path, `"`),
			Status: line[:2],
		})
	}

	return changes
}
