package engine

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/uupfetch/internal/metrics"
	"github.com/vertextoedge/uupfetch/internal/util/ratelimiter"
)

// Progress is a point-in-time view of a DownloadMany call
type Progress struct {
	// BytesTransferred counts bytes streamed to disk during this call
	BytesTransferred int64

	// BytesCompleted sums the declared sizes of finished files
	BytesCompleted int64

	// TotalBytes is the declared size of all planned files, 0 when unknown
	TotalBytes int64

	FilesDone  int
	FilesTotal int
}

// ProgressFunc receives progress snapshots. It is called from worker
// goroutines and must be safe for concurrent use.
type ProgressFunc func(Progress)

// Tracker is the shared progress accumulator. All counters are atomic so
// every worker can update it without locking.
type Tracker struct {
	transferred atomic.Int64
	completed   atomic.Int64
	filesDone   atomic.Int64

	totalBytes int64
	filesTotal int

	limiter  *ratelimiter.Limiter
	logger   *zap.Logger
	onUpdate ProgressFunc
}

// NewTracker creates a tracker that logs at most once per interval
func NewTracker(totalBytes int64, filesTotal int, interval time.Duration, logger *zap.Logger, onUpdate ProgressFunc) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		totalBytes: totalBytes,
		filesTotal: filesTotal,
		limiter:    ratelimiter.New(interval),
		logger:     logger,
		onUpdate:   onUpdate,
	}
}

// AddBytes records n bytes written to a partial file
func (t *Tracker) AddBytes(n int64) {
	if t == nil || n <= 0 {
		return
	}
	t.transferred.Add(n)
	metrics.BytesDownloaded.Add(float64(n))

	if ok, _ := t.limiter.Allow(); ok {
		t.report()
	}
}

// FileDone records a finished file by its declared size (0 if unknown)
func (t *Tracker) FileDone(declaredSize int64) {
	if t == nil {
		return
	}
	if declaredSize > 0 {
		t.completed.Add(declaredSize)
	}
	t.filesDone.Add(1)
	t.report()
}

// Snapshot returns the current counters
func (t *Tracker) Snapshot() Progress {
	if t == nil {
		return Progress{}
	}
	return Progress{
		BytesTransferred: t.transferred.Load(),
		BytesCompleted:   t.completed.Load(),
		TotalBytes:       t.totalBytes,
		FilesDone:        int(t.filesDone.Load()),
		FilesTotal:       t.filesTotal,
	}
}

func (t *Tracker) report() {
	p := t.Snapshot()

	fields := []zap.Field{
		zap.String("transferred", humanize.IBytes(uint64(p.BytesTransferred))),
		zap.String("completed", humanize.IBytes(uint64(p.BytesCompleted))),
		zap.Int("files_done", p.FilesDone),
		zap.Int("files_total", p.FilesTotal),
	}
	if p.TotalBytes > 0 {
		fields = append(fields,
			zap.String("total", humanize.IBytes(uint64(p.TotalBytes))),
			zap.String("percent", humanize.FormatFloat("#.#", percent(p.BytesCompleted, p.TotalBytes))))
	}
	t.logger.Info("download progress", fields...)

	if t.onUpdate != nil {
		t.onUpdate(p)
	}
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
