package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/vertextoedge/uupfetch/internal/domain"
)

// ScriptName is the converter entry point inside the converter directory
const ScriptName = "convert.sh"

// ErrConverterNotFound is returned when convert.sh is absent
var ErrConverterNotFound = errors.New("converter not found")

// Compression is the image compression passed to the converter
type Compression string

const (
	CompressionWIM Compression = "wim"
	CompressionESD Compression = "esd"
)

// ParseCompression parses "wim" or "esd"; empty selects wim
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wim":
		return CompressionWIM, nil
	case "esd":
		return CompressionESD, nil
	default:
		return "", fmt.Errorf("unknown compression %q: %w", s, domain.ErrInvalidInput)
	}
}

// Options describes one converter invocation
type Options struct {
	// Dir contains convert.sh
	Dir string

	Compression     Compression
	VirtualEditions bool
}

// prerequisites are tools convert.sh shells out to; each group needs one match
var prerequisites = [][]string{
	{"aria2c"},
	{"cabextract"},
	{"wimlib-imagex"},
	{"chntpw"},
	{"genisoimage", "mkisofs"},
}

// Runner invokes the external UUP converter on a download directory
type Runner struct {
	logger   *zap.Logger
	stdout   io.Writer
	stderr   io.Writer
	lookPath func(file string) (string, error)
}

// New creates a Runner streaming converter output to stdout and stderr
func New(logger *zap.Logger, stdout, stderr io.Writer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Runner{
		logger:   logger,
		stdout:   stdout,
		stderr:   stderr,
		lookPath: exec.LookPath,
	}
}

// MissingTools returns prerequisite tools not found on PATH
func (r *Runner) MissingTools() []string {
	var missing []string
	for _, group := range prerequisites {
		found := false
		for _, tool := range group {
			if _, err := r.lookPath(tool); err == nil {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, strings.Join(group, "/"))
		}
	}
	return missing
}

// Run executes <Dir>/convert.sh <compression> <uupDir> <0|1> and returns its
// exit code. A non-zero exit is not an error; failing to start is.
func (r *Runner) Run(ctx context.Context, opts Options, uupDir string) (int, error) {
	script := filepath.Join(opts.Dir, ScriptName)
	info, err := os.Stat(script)
	if err != nil || !info.Mode().IsRegular() {
		return -1, fmt.Errorf("%w: %s not found in %s", ErrConverterNotFound, ScriptName, opts.Dir)
	}

	// cmd.Dir changes the base for relative paths
	if script, err = filepath.Abs(script); err != nil {
		return -1, fmt.Errorf("failed to resolve converter path: %w", err)
	}
	if uupDir, err = filepath.Abs(uupDir); err != nil {
		return -1, fmt.Errorf("failed to resolve download dir: %w", err)
	}

	if opts.Compression == "" {
		opts.Compression = CompressionWIM
	}

	if missing := r.MissingTools(); len(missing) > 0 {
		r.logger.Warn("converter prerequisites missing, conversion may fail",
			zap.Strings("tools", missing))
	}

	ve := "0"
	if opts.VirtualEditions {
		ve = "1"
	}

	cmd := exec.CommandContext(ctx, script, string(opts.Compression), uupDir, ve)
	cmd.Dir = opts.Dir
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	r.logger.Info("running converter",
		zap.String("script", script),
		zap.String("compression", string(opts.Compression)),
		zap.String("uup_dir", uupDir),
		zap.Bool("virtual_editions", opts.VirtualEditions))

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case ctx.Err() != nil:
		return -1, ctx.Err()
	case errors.As(err, &exitErr):
		r.logger.Warn("converter exited with error", zap.Int("exit_code", exitErr.ExitCode()))
		return exitErr.ExitCode(), nil
	default:
		return -1, fmt.Errorf("failed to start converter: %w", err)
	}
}
