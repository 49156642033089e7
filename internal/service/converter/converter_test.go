package converter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vertextoedge/uupfetch/internal/domain"
)

// writeScript installs a fake convert.sh that records its arguments
func writeScript(t *testing.T, dir string, exitCode string) {
	t.Helper()
	script := "#!/bin/sh\necho \"$@\" > args.txt\necho converting\nexit " + exitCode + "\n"
	if err := os.WriteFile(filepath.Join(dir, ScriptName), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
}

func newTestRunner(stdout *bytes.Buffer) *Runner {
	r := New(zap.NewNop(), stdout, stdout)
	r.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	return r
}

func TestRunner_Run(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		exit     string
		wantCode int
		wantArgs string
	}{
		{"defaults", Options{}, "0", 0, "wim /data/uup 0"},
		{"esd with virtual editions", Options{Compression: CompressionESD, VirtualEditions: true}, "0", 0, "esd /data/uup 1"},
		{"failure exit code", Options{}, "7", 7, "wim /data/uup 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeScript(t, dir, tt.exit)
			tt.opts.Dir = dir

			var out bytes.Buffer
			code, err := newTestRunner(&out).Run(context.Background(), tt.opts, "/data/uup")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}

			args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
			if err != nil {
				t.Fatalf("script did not run in converter dir: %v", err)
			}
			if got := strings.TrimSpace(string(args)); got != tt.wantArgs {
				t.Errorf("args = %q, want %q", got, tt.wantArgs)
			}
			if !strings.Contains(out.String(), "converting") {
				t.Errorf("converter output not forwarded: %q", out.String())
			}
		})
	}
}

func TestRunner_NotFound(t *testing.T) {
	var out bytes.Buffer
	code, err := newTestRunner(&out).Run(context.Background(), Options{Dir: t.TempDir()}, "/data/uup")
	if !errors.Is(err, ErrConverterNotFound) {
		t.Fatalf("expected ErrConverterNotFound, got %v", err)
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1", code)
	}
}

func TestRunner_MissingTools(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := New(zap.New(core), &bytes.Buffer{}, &bytes.Buffer{})
	available := map[string]bool{"aria2c": true, "mkisofs": true}
	r.lookPath = func(file string) (string, error) {
		if available[file] {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("not found")
	}

	want := []string{"cabextract", "wimlib-imagex", "chntpw"}
	if got := r.MissingTools(); !reflect.DeepEqual(got, want) {
		t.Errorf("MissingTools() = %v, want %v", got, want)
	}

	dir := t.TempDir()
	writeScript(t, dir, "0")
	if _, err := r.Run(context.Background(), Options{Dir: dir}, dir); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if logs.FilterMessage("converter prerequisites missing, conversion may fail").Len() != 1 {
		t.Error("expected a warning about missing tools")
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionWIM, false},
		{"WIM", CompressionWIM, false},
		{"esd", CompressionESD, false},
		{"zip", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCompression(%q) = %q, %v", tt.in, got, err)
		}
		if tt.wantErr && !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	}
}
