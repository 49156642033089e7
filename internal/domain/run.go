package domain

import "time"

// Run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Transfer status constants
const (
	TransferStatusCompleted = "completed"
	TransferStatusMismatch  = "mismatch"
	TransferStatusFailed    = "failed"
	TransferStatusSkipped   = "skipped"
)

// Run is one invocation of the download engine over a manifest
type Run struct {
	ID         string `json:"id"`
	UpdateID   string `json:"update_id"`
	UpdateName string `json:"update_name"`
	Build      string `json:"build"`
	Arch       string `json:"arch"`
	DestDir    string `json:"dest_dir"`
	FileCount  int    `json:"file_count"`
	TotalBytes int64  `json:"total_bytes"`

	Status    string `json:"status"`
	LastError string `json:"last_error"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// Finish records the terminal state of the run
func (r *Run) Finish(err error) {
	now := time.Now()
	r.FinishedAt = &now
	if err != nil {
		r.Status = RunStatusFailed
		r.LastError = err.Error()
		return
	}
	r.Status = RunStatusCompleted
	r.LastError = ""
}

// TransferRecord is the journaled outcome of one file within a run
type TransferRecord struct {
	RunID        string    `json:"run_id"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	Status       string    `json:"status"`
	BytesWritten int64     `json:"bytes_written"`
	ResumedFrom  int64     `json:"resumed_from"`
	Error        string    `json:"error"`
	RecordedAt   time.Time `json:"recorded_at"`
}
