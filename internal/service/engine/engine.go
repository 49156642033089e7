package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/domain/event"
	"github.com/vertextoedge/uupfetch/internal/port"
)

// DefaultChunkSize is the streaming buffer size
const DefaultChunkSize = 1024 * 1024

// Policy decides what happens to sibling transfers when one file fails
type Policy string

const (
	// PolicyDrainAll lets every task run to completion and reports the first error
	PolicyDrainAll Policy = "drain"

	// PolicyFailFast cancels in-flight transfers and stops submitting new ones
	PolicyFailFast Policy = "fail-fast"
)

// ParsePolicy parses a policy name; empty selects PolicyDrainAll
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drain", "drain-all":
		return PolicyDrainAll, nil
	case "fail-fast":
		return PolicyFailFast, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q: %w", s, domain.ErrInvalidInput)
	}
}

// Options controls engine behaviour
type Options struct {
	// Concurrency is the number of parallel transfers; values below 1 mean 1
	Concurrency int

	// Resume continues existing partial files with range requests
	Resume bool

	Policy Policy

	// RemoveOnMismatch deletes a delivered file whose SHA-1 does not match
	RemoveOnMismatch bool

	// ChunkSize is the read/append unit. Default: 1 MiB
	ChunkSize int

	// ProgressInterval throttles progress log lines. Default: 5s
	ProgressInterval time.Duration

	// OnProgress is called with aggregate progress snapshots
	OnProgress ProgressFunc
}

// DefaultOptions returns the default engine options
func DefaultOptions() Options {
	return Options{
		Concurrency:      4,
		Resume:           true,
		Policy:           PolicyDrainAll,
		ChunkSize:        DefaultChunkSize,
		ProgressInterval: 5 * time.Second,
	}
}

// Engine downloads manifests to local disk with bounded concurrency,
// resumable partial files and SHA-1 verification
type Engine struct {
	source port.Source
	fs     port.FileSystem
	events event.EventDispatcher
	logger *zap.Logger
	opts   Options
}

// New creates a download engine
func New(source port.Source, fs port.FileSystem, events event.EventDispatcher, logger *zap.Logger, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Policy == "" {
		opts.Policy = PolicyDrainAll
	}
	if events == nil {
		events = event.NullDispatcher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		source: source,
		fs:     fs,
		events: events,
		logger: logger,
		opts:   opts,
	}
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.opts
}

// DownloadMany delivers every manifest entry with a URL into destDir.
// Results are returned in task order (sorted by filename), one per
// attempted or unsubmitted file. The error is the first failure observed.
func (e *Engine) DownloadMany(ctx context.Context, m *domain.Manifest, destDir string) ([]domain.FileResult, error) {
	if m == nil {
		return nil, fmt.Errorf("nil manifest: %w", domain.ErrInvalidInput)
	}

	tasks, skipped := m.Tasks(destDir)
	for _, skipErr := range skipped {
		name := skipErr.Error()
		var se *domain.SkippableError
		if errors.As(skipErr, &se) {
			name = se.Context
		}
		e.events.Dispatch(event.NewEntrySkipped(name, domain.ErrMissingURL.Error()))
	}

	if err := e.fs.EnsureDir(destDir); err != nil {
		return nil, err
	}

	var totalBytes int64
	for _, task := range tasks {
		totalBytes += task.Descriptor.DeclaredSize()
	}
	tracker := NewTracker(totalBytes, len(tasks), e.opts.ProgressInterval, e.logger, e.opts.OnProgress)

	e.logger.Info("starting downloads",
		zap.Int("files", len(tasks)),
		zap.Int("skipped", len(skipped)),
		zap.Int64("declared_bytes", totalBytes),
		zap.Int("concurrency", e.opts.Concurrency),
		zap.String("policy", string(e.opts.Policy)),
		zap.String("dest_dir", destDir))

	results := make([]domain.FileResult, len(tasks))

	g := &errgroup.Group{}
	gctx := ctx
	if e.opts.Policy == PolicyFailFast {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(e.opts.Concurrency)

	submitted := 0
	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		i, task := i, task
		g.Go(func() error {
			res, err := e.download(gctx, task, tracker)
			results[i] = res
			return err
		})
		submitted++
	}

	err := g.Wait()

	// Tasks never started keep no state on disk; report why they did not run
	if submitted < len(tasks) {
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		for i := submitted; i < len(tasks); i++ {
			results[i] = domain.FileResult{
				Filename: tasks[i].Descriptor.Filename,
				Path:     tasks[i].DestPath,
				Err:      cause,
			}
		}
		if err == nil {
			err = cause
		}
	}

	p := tracker.Snapshot()
	e.logger.Info("downloads finished",
		zap.Int("files_done", p.FilesDone),
		zap.Int("files_total", p.FilesTotal),
		zap.Int64("bytes_transferred", p.BytesTransferred),
		zap.Error(err))

	return results, err
}

// DownloadFile delivers a single file into destDir
func (e *Engine) DownloadFile(ctx context.Context, fd domain.FileDescriptor, destDir string) (domain.FileResult, error) {
	if fd.URL == "" {
		err := domain.NewSkippableError(domain.ErrMissingURL, fd.Filename)
		return domain.FileResult{Filename: fd.Filename, Err: err}, err
	}
	if err := e.fs.EnsureDir(destDir); err != nil {
		return domain.FileResult{Filename: fd.Filename, Err: err}, err
	}
	return e.download(ctx, domain.NewDownloadTask(fd, destDir), nil)
}
