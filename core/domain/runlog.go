package domain

import "time"

type RunType string

const (
	RunImport RunType = "import"
	RunExport RunType = "export"
)

// RunStats accumulates per-item outcomes over one sync run. Imported
// counts remote items pulled in; Exported counts local items pushed out.
type RunStats struct {
	Imported   int `json:"imported"`
	Exported   int `json:"exported"`
	Updated    int `json:"updated"`
	Deleted    int `json:"deleted"`
	Conflicted int `json:"conflicted"`
	Errored    int `json:"errored"`
}

// Total returns the number of items the run touched.
func (s RunStats) Total() int {
	return s.Imported + s.Exported + s.Updated + s.Deleted + s.Conflicted + s.Errored
}

// SyncRunLog is the immutable record of one synchronization attempt.
// Entries are append-only and never mutated after creation.
type SyncRunLog struct {
	ID           string    `json:"id"`
	ConnectionID int64     `json:"connection_id"`
	RunType      RunType   `json:"run_type"`
	Stats        RunStats  `json:"stats"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	StartedAt    time.Time `json:"started_at"`
}
