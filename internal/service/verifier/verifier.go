package verifier

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/port"
)

// Status is the verification outcome of one file
type Status string

const (
	StatusOK      Status = "OK"
	StatusMissing Status = "MISSING"
	StatusBadSum  Status = "BADSUM"
	StatusError   Status = "ERROR"
)

// Result describes one manifest entry checked against disk
type Result struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Status   Status `json:"status"`

	// Checked is false when the manifest declares no SHA-1
	Checked  bool   `json:"checked"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`

	Err error `json:"-"`
}

// Report is the outcome of verifying a directory against a manifest
type Report struct {
	Results []Result `json:"results"`

	// Partials lists leftover partial files in the directory
	Partials []string `json:"partials,omitempty"`
}

// Failures returns the number of entries that are not OK
func (r *Report) Failures() int {
	n := 0
	for _, res := range r.Results {
		if res.Status != StatusOK {
			n++
		}
	}
	return n
}

// OK reports whether every entry is present and matches
func (r *Report) OK() bool {
	return r.Failures() == 0
}

// Verifier checks downloaded files against a manifest
type Verifier struct {
	fs          port.FileSystem
	logger      *zap.Logger
	concurrency int
}

// New creates a Verifier hashing up to concurrency files at once
func New(fs port.FileSystem, logger *zap.Logger, concurrency int) *Verifier {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{fs: fs, logger: logger, concurrency: concurrency}
}

// Verify checks every manifest entry under dir. Entries without a declared
// SHA-1 only need to exist. Results are sorted by filename.
func (v *Verifier) Verify(ctx context.Context, m *domain.Manifest, dir string) (*Report, error) {
	names := m.Names()
	results := make([]Result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)

	for i, name := range names {
		i, fd := i, m.Files[name]
		if fd.Filename == "" {
			fd.Filename = name
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = v.verifyOne(fd, dir)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	partials, err := v.fs.ListPartials(dir)
	if err != nil {
		v.logger.Warn("failed to list partial files", zap.String("dir", dir), zap.Error(err))
	}

	report := &Report{Results: results, Partials: partials}
	v.logger.Debug("verification finished",
		zap.String("dir", dir),
		zap.Int("files", len(results)),
		zap.Int("failures", report.Failures()),
		zap.Int("partials", len(partials)))
	return report, nil
}

func (v *Verifier) verifyOne(fd domain.FileDescriptor, dir string) Result {
	path := filepath.Join(dir, fd.Filename)
	res := Result{Filename: fd.Filename, Path: path, Expected: fd.SHA1}

	if !v.fs.FileExists(path) {
		res.Status = StatusMissing
		res.Err = &domain.MissingFileError{Filename: fd.Filename, Path: path}
		return res
	}

	if !fd.HasChecksum() {
		res.Status = StatusOK
		return res
	}

	actual, err := v.fs.HashSHA1(path)
	if err != nil {
		res.Status = StatusError
		res.Err = err
		return res
	}

	res.Checked = true
	res.Actual = actual
	if !fd.MatchesChecksum(actual) {
		res.Status = StatusBadSum
		res.Err = &domain.ChecksumMismatchError{Filename: fd.Filename, Path: path, Expected: fd.SHA1, Actual: actual}
		return res
	}

	res.Status = StatusOK
	return res
}
