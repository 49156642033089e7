package event

import (
	"time"
)

// Event names
const (
	NameTransferStarted = "transfer.started"
	NameFileDownloaded  = "transfer.completed"
	NameTransferFailed  = "transfer.failed"
	NameEntrySkipped    = "manifest.entry_skipped"

	// AllEvents subscribes a handler to every event
	AllEvents = "*"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// TransferStarted is raised when a worker begins streaming a file
type TransferStarted struct {
	BaseEvent
	Filename   string
	URL        string
	ResumeFrom int64
}

// EventName returns the event name
func (e TransferStarted) EventName() string {
	return NameTransferStarted
}

// NewTransferStarted creates a new TransferStarted event
func NewTransferStarted(filename, url string, resumeFrom int64) TransferStarted {
	return TransferStarted{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		Filename:   filename,
		URL:        url,
		ResumeFrom: resumeFrom,
	}
}

// FileDownloaded is raised when a file has been renamed into place
// (and verified, when a digest was declared)
type FileDownloaded struct {
	BaseEvent
	Filename     string
	Path         string
	BytesWritten int64
	ResumedFrom  int64
	Verified     bool
	Duration     time.Duration
}

// EventName returns the event name
func (e FileDownloaded) EventName() string {
	return NameFileDownloaded
}

// NewFileDownloaded creates a new FileDownloaded event
func NewFileDownloaded(filename, path string, written, resumedFrom int64, verified bool, duration time.Duration) FileDownloaded {
	return FileDownloaded{
		BaseEvent:    BaseEvent{Timestamp: time.Now()},
		Filename:     filename,
		Path:         path,
		BytesWritten: written,
		ResumedFrom:  resumedFrom,
		Verified:     verified,
		Duration:     duration,
	}
}

// TransferFailed is raised when a file could not be delivered or verified
type TransferFailed struct {
	BaseEvent
	Filename string
	Path     string
	Error    string
	Mismatch bool

	// Started is false when the transfer failed before TransferStarted
	Started bool
}

// EventName returns the event name
func (e TransferFailed) EventName() string {
	return NameTransferFailed
}

// NewTransferFailed creates a new TransferFailed event
func NewTransferFailed(filename, path, err string, mismatch, started bool) TransferFailed {
	return TransferFailed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Filename:  filename,
		Path:      path,
		Error:     err,
		Mismatch:  mismatch,
		Started:   started,
	}
}

// EntrySkipped is raised for manifest entries that are never attempted
type EntrySkipped struct {
	BaseEvent
	Filename string
	Reason   string
}

// EventName returns the event name
func (e EntrySkipped) EventName() string {
	return NameEntrySkipped
}

// NewEntrySkipped creates a new EntrySkipped event
func NewEntrySkipped(filename, reason string) EntrySkipped {
	return EntrySkipped{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Filename:  filename,
		Reason:    reason,
	}
}
