// Package retention prunes old run snapshots.
package retention

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Manager keeps the newest snapshots under a runs directory and removes the
// rest. Run directory names sort by start time (run IDs are UUIDv7), so the
// lexically smallest names are the oldest.
type Manager struct {
	mu   sync.RWMutex
	dir  string
	keep int
}

// CleanupResult holds the result of a cleanup operation.
type CleanupResult struct {
	RunsKept    int
	RunsDeleted []string
	BytesFreed  int64
	Errors      []error
}

// New creates a retention manager. keep <= 0 disables pruning.
func New(dir string, keep int) *Manager {
	return &Manager{dir: dir, keep: keep}
}

// RunCleanup deletes every snapshot beyond the newest keep.
func (m *Manager) RunCleanup() CleanupResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanup()
}

func (m *Manager) cleanup() CleanupResult {
	var result CleanupResult

	runs, err := m.listRuns()
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Errorf("list runs: %w", err))
		}
		return result
	}

	if m.keep <= 0 || len(runs) <= m.keep {
		result.RunsKept = len(runs)
		return result
	}

	expired := runs[:len(runs)-m.keep]
	result.RunsKept = m.keep

	for _, run := range expired {
		size := dirSize(run.path)
		if err := os.RemoveAll(run.path); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", run.path, err))
			continue
		}
		result.RunsDeleted = append(result.RunsDeleted, run.name)
		result.BytesFreed += size
	}

	return result
}

// runInfo holds information about a snapshot directory.
type runInfo struct {
	name string
	path string
}

// listRuns lists complete snapshot directories, oldest first. Hidden
// directories (snapshots still being written) are ignored.
func (m *Manager) listRuns() ([]runInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var runs []runInfo
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		runs = append(runs, runInfo{
			name: entry.Name(),
			path: filepath.Join(m.dir, entry.Name()),
		})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].name < runs[j].name
	})
	return runs, nil
}

// Runs returns the names of complete snapshots, oldest first.
func (m *Manager) Runs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs, err := m.listRuns()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, len(runs))
	for i, r := range runs {
		names[i] = r.name
	}
	return names, nil
}

func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
