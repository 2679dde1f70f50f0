package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/grovetools/relay/pkg/process"
)

// Discover scans baseDir and returns every tracked process. A process whose
// PID is gone is reported as interrupted.
func Discover(baseDir string) ([]ProcessMetadata, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ProcessMetadata{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var found []ProcessMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sessionDir := filepath.Join(baseDir, entry.Name())

		pid, err := readPid(filepath.Join(sessionDir, pidFileName))
		if err != nil {
			continue
		}

		metadataContent, err := os.ReadFile(filepath.Join(sessionDir, metadataFileName))
		if err != nil {
			continue
		}
		var metadata ProcessMetadata
		if err := json.Unmarshal(metadataContent, &metadata); err != nil {
			continue
		}

		metadata.PID = pid
		metadata.Status = StatusRunning
		if !process.IsProcessAlive(pid) {
			metadata.Status = StatusInterrupted
		}
		found = append(found, metadata)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].StartedAt.Before(found[j].StartedAt)
	})
	return found, nil
}

// Prune removes records of processes that are no longer running and
// returns how many were removed.
func Prune(baseDir string) (int, error) {
	found, err := Discover(baseDir)
	if err != nil {
		return 0, err
	}

	r := &FileSystemRegistry{baseDir: baseDir}
	removed := 0
	for _, p := range found {
		if p.Status != StatusInterrupted {
			continue
		}
		if err := r.Unregister(p.SessionID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
