package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"olx-scraper/models"
)

// RunWriter exports finished run results as JSON files, one file per run.
// Concurrent runs share one writer.
type RunWriter struct {
	dir string
	mu  sync.Mutex
}

// NewRunWriter prepares the results directory.
func NewRunWriter(dir string) (*RunWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("results: create directory %s: %w", dir, err)
	}
	return &RunWriter{dir: dir}, nil
}

// Write saves one run result. The file name carries the start time and a
// short run id so repeated runs never collide.
func (w *RunWriter) Write(res *models.RunResult) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	runID := res.Stats.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	name := fmt.Sprintf("run_%s_%s.json", res.Stats.StartedAt.Format("20060102_150405"), runID)
	path := filepath.Join(w.dir, name)

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("results: encode run %s: %w", res.Stats.RunID, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("results: write %s: %w", path, err)
	}
	return path, nil
}
