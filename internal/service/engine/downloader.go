package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/domain/event"
)

// download runs one transfer: open (ranged when resuming), append to the
// partial file, promote, verify. Failures leave the partial file in place.
func (e *Engine) download(ctx context.Context, task *domain.DownloadTask, tracker *Tracker) (domain.FileResult, error) {
	fd := task.Descriptor
	res := domain.FileResult{Filename: fd.Filename, Path: task.DestPath}
	start := time.Now()

	if err := validateFilename(fd.Filename); err != nil {
		return e.failBeforeStart(res, task.PartPath, err)
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res, err
	}

	task.Offset = 0
	if e.opts.Resume {
		size, err := e.fs.PartialSize(task.PartPath)
		if err != nil {
			return e.failBeforeStart(res, task.PartPath, err)
		}
		task.Offset = size
	}

	e.events.Dispatch(event.NewTransferStarted(fd.Filename, fd.URL, task.Offset))

	src, err := e.source.Open(ctx, fd.URL, task.Offset)
	if err != nil {
		return e.fail(res, task.PartPath, err)
	}
	defer src.Body.Close()

	if src.Offset != task.Offset {
		e.logger.Info("server ignored range request, restarting from zero",
			zap.String("file", fd.Filename),
			zap.Int64("requested_offset", task.Offset))
		task.Offset = src.Offset
	} else if task.Resuming() {
		e.logger.Info("resuming download",
			zap.String("file", fd.Filename),
			zap.Int64("from_byte", task.Offset))
	}
	res.ResumedFrom = task.Offset

	w, err := e.fs.OpenPartial(task.PartPath, task.Offset)
	if err != nil {
		return e.fail(res, task.PartPath, err)
	}

	written, copyErr := e.copyChunks(w, src.Body, tracker)
	closeErr := w.Close()
	res.BytesWritten = written

	if copyErr != nil {
		return e.fail(res, task.PartPath, copyErr)
	}
	if closeErr != nil {
		return e.fail(res, task.PartPath, fmt.Errorf("failed to close partial file: %w", closeErr))
	}

	if declared := fd.DeclaredSize(); declared > 0 && task.Offset+written != declared {
		e.logger.Warn("delivered size differs from declared size",
			zap.String("file", fd.Filename),
			zap.Int64("declared", declared),
			zap.Int64("delivered", task.Offset+written))
	}

	if err := e.fs.Promote(task.PartPath, task.DestPath); err != nil {
		return e.fail(res, task.PartPath, err)
	}

	if fd.HasChecksum() {
		actual, err := e.fs.HashSHA1(task.DestPath)
		if err != nil {
			return e.fail(res, task.DestPath, err)
		}
		if !fd.MatchesChecksum(actual) {
			return e.mismatch(res, fd, actual)
		}
		res.Verified = true
	}

	e.events.Dispatch(event.NewFileDownloaded(fd.Filename, task.DestPath, written, res.ResumedFrom, res.Verified, time.Since(start)))
	tracker.FileDone(fd.DeclaredSize())
	return res, nil
}

// copyChunks streams r into w in ChunkSize pieces, appending only
func (e *Engine) copyChunks(w io.Writer, r io.Reader, tracker *Tracker) (int64, error) {
	buf := make([]byte, e.opts.ChunkSize)
	var written int64

	for {
		n, readErr := readChunk(r, buf)
		if n > 0 {
			wn, writeErr := w.Write(buf[:n])
			written += int64(wn)
			tracker.AddBytes(int64(wn))
			if writeErr != nil {
				return written, fmt.Errorf("write failed: %w", writeErr)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read failed: %w", readErr)
		}
	}
}

// readChunk fills buf unless the reader ends or fails first
func readChunk(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		nn, err := r.Read(buf[n:])
		n += nn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// fail reports a failure of a transfer that has dispatched TransferStarted
func (e *Engine) fail(res domain.FileResult, path string, err error) (domain.FileResult, error) {
	return e.failed(res, path, err, true)
}

func (e *Engine) failBeforeStart(res domain.FileResult, path string, err error) (domain.FileResult, error) {
	return e.failed(res, path, err, false)
}

func (e *Engine) failed(res domain.FileResult, path string, err error, started bool) (domain.FileResult, error) {
	err = fmt.Errorf("download %s: %w", res.Filename, err)
	res.Err = err
	e.events.Dispatch(event.NewTransferFailed(res.Filename, path, err.Error(), false, started))
	return res, err
}

func (e *Engine) mismatch(res domain.FileResult, fd domain.FileDescriptor, actual string) (domain.FileResult, error) {
	err := &domain.ChecksumMismatchError{
		Filename: fd.Filename,
		Path:     res.Path,
		Expected: fd.SHA1,
		Actual:   actual,
	}
	res.Err = err

	if e.opts.RemoveOnMismatch {
		if rmErr := e.fs.DeleteFile(res.Path); rmErr != nil {
			e.logger.Warn("failed to remove mismatched file",
				zap.String("path", res.Path),
				zap.Error(rmErr))
		}
	}

	e.events.Dispatch(event.NewTransferFailed(fd.Filename, res.Path, err.Error(), true, true))
	return res, err
}

// validateFilename rejects names that would escape the destination directory
func validateFilename(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("unsafe filename %q: %w", name, domain.ErrInvalidInput)
	}
	return nil
}
