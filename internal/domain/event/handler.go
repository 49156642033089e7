package event

import (
	"go.uber.org/zap"

	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/metrics"
	"github.com/vertextoedge/uupfetch/internal/port"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case TransferStarted:
		h.logger.Debug("transfer started",
			zap.String("file", e.Filename),
			zap.String("url", e.URL),
			zap.Int64("resume_from", e.ResumeFrom),
		)
	case FileDownloaded:
		h.logger.Info("file downloaded",
			zap.String("file", e.Filename),
			zap.String("path", e.Path),
			zap.Int64("bytes_written", e.BytesWritten),
			zap.Int64("resumed_from", e.ResumedFrom),
			zap.Bool("verified", e.Verified),
			zap.Duration("duration", e.Duration),
		)
	case TransferFailed:
		h.logger.Warn("transfer failed",
			zap.String("file", e.Filename),
			zap.String("path", e.Path),
			zap.String("error", e.Error),
			zap.Bool("checksum_mismatch", e.Mismatch),
		)
	case EntrySkipped:
		h.logger.Debug("manifest entry skipped",
			zap.String("file", e.Filename),
			zap.String("reason", e.Reason),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{AllEvents}
}

// MetricsHandler feeds transfer outcomes into the prometheus collectors
type MetricsHandler struct{}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case TransferStarted:
		metrics.ActiveTransfers.Inc()
	case FileDownloaded:
		metrics.ActiveTransfers.Dec()
		metrics.FilesFinished.WithLabelValues(metrics.ResultOK).Inc()
	case TransferFailed:
		if e.Started {
			metrics.ActiveTransfers.Dec()
		}
		if e.Mismatch {
			metrics.FilesFinished.WithLabelValues(metrics.ResultMismatch).Inc()
		} else {
			metrics.FilesFinished.WithLabelValues(metrics.ResultFailed).Inc()
		}
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{NameTransferStarted, NameFileDownloaded, NameTransferFailed}
}

// JournalHandler appends per-file outcomes of one run to a TransferJournal
type JournalHandler struct {
	runID   string
	journal port.TransferJournal
}

// NewJournalHandler creates a handler recording outcomes under runID
func NewJournalHandler(runID string, journal port.TransferJournal) *JournalHandler {
	return &JournalHandler{runID: runID, journal: journal}
}

// Handle records terminal transfer events
func (h *JournalHandler) Handle(event DomainEvent) error {
	rec := &domain.TransferRecord{RunID: h.runID, RecordedAt: event.OccurredAt()}

	switch e := event.(type) {
	case FileDownloaded:
		rec.Filename = e.Filename
		rec.Path = e.Path
		rec.Status = domain.TransferStatusCompleted
		rec.BytesWritten = e.BytesWritten
		rec.ResumedFrom = e.ResumedFrom
	case TransferFailed:
		rec.Filename = e.Filename
		rec.Path = e.Path
		rec.Status = domain.TransferStatusFailed
		if e.Mismatch {
			rec.Status = domain.TransferStatusMismatch
		}
		rec.Error = e.Error
	case EntrySkipped:
		rec.Filename = e.Filename
		rec.Status = domain.TransferStatusSkipped
		rec.Error = e.Reason
	default:
		return nil
	}

	return h.journal.RecordTransfer(rec)
}

// HandledEvents returns the events this handler handles
func (h *JournalHandler) HandledEvents() []string {
	return []string{NameFileDownloaded, NameTransferFailed, NameEntrySkipped}
}
