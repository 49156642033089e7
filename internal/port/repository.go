package port

import (
	"github.com/vertextoedge/uupfetch/internal/domain"
)

// TransferJournal records download runs and per-file outcomes.
// It is an audit trail only; it never decides what gets downloaded.
type TransferJournal interface {
	// StartRun inserts a new run in running state
	StartRun(run *domain.Run) error

	// FinishRun stores the terminal state of a run
	FinishRun(run *domain.Run) error

	// RecordTransfer appends one file outcome to a run
	RecordTransfer(rec *domain.TransferRecord) error

	// ListRuns returns the most recent runs, newest first
	ListRuns(limit int) ([]*domain.Run, error)

	// ListTransfers returns the outcomes recorded for a run
	ListTransfers(runID string) ([]*domain.TransferRecord, error)
}
