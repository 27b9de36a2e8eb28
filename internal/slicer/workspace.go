package slicer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SweepStale removes runner workspaces under dir last modified before
// cutoff. These only survive when a process died mid-slice. An empty dir
// means the system temp directory. It returns the number removed.
func SweepStale(dir string, cutoff time.Time) (int, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read temp dir: %w", err)
	}
	removed := 0
	var firstErr error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), WorkspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove workspace %s: %w", e.Name(), err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
