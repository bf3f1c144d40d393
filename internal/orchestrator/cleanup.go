package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupTemps removes entries of dir older than maxAge that were created by
// the job pipeline: upload directories of finished jobs, fetched decks and
// conversion directories.
func CleanupTemps(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if !(strings.HasPrefix(name, jobDirPrefix) || strings.HasPrefix(name, "fetch-") || strings.HasPrefix(name, "convert-")) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if os.RemoveAll(filepath.Join(dir, name)) == nil {
			removed++
		}
	}
	return removed
}
