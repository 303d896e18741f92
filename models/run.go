package models

import "time"

// RunState identifies where a workflow run is in its lifecycle.
type RunState string

const (
	StateIdle        RunState = "idle"
	StateDiscovering RunState = "discovering"
	StateProcessing  RunState = "processing_items"
	StateFinalized   RunState = "finalized"
)

// RunStats aggregates counters for one workflow run. The workflow's
// sequential loop is the only writer; after finalization the struct is
// read-only.
type RunStats struct {
	RunID           string    `json:"run_id"`
	StartURL        string    `json:"start_url"`
	Discovered      int       `json:"discovered"`
	Persisted       int       `json:"persisted"`
	Skipped         int       `json:"skipped"`
	UsersCreated    int       `json:"users_created"`
	UsersLinked     int       `json:"users_linked"`
	ImagesMigrated  int       `json:"images_migrated"`
	Errors          []string  `json:"errors"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// RunResult is what a workflow run hands back to its caller.
type RunResult struct {
	Success bool      `json:"success"`
	Stats   *RunStats `json:"stats"`
}
