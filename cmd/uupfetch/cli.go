package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vertextoedge/uupfetch/internal/adapter/uupapi"
	"github.com/vertextoedge/uupfetch/internal/config"
	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/logger"
	"github.com/vertextoedge/uupfetch/internal/service/converter"
)

// cli carries the output streams shared by all commands
type cli struct {
	stdout io.Writer
	stderr io.Writer
}

// commonFlags are accepted by every command except version
type commonFlags struct {
	configPath string
	json       bool
}

// newFlagSet creates a command flag set with the common flags registered
func (c *cli) newFlagSet(name, usage string, common *commonFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: uupfetch %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}

	fs.StringVar(&common.configPath, "config", "", "Path to uupfetch.yaml")
	fs.BoolVar(&common.json, "json", false, "Print JSON instead of text")
	fs.String("base-url", uupapi.DefaultBaseURL, "Metadata API base URL")
	fs.Int("max-retries", 5, "Attempts per metadata request")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")
	fs.String("log-file", "", "Also write JSON logs to this file, rotated by size")
	return fs
}

// parse parses args and returns the positional arguments. ok is false when
// the command should stop with code.
func (c *cli) parse(fs *pflag.FlagSet, args []string, positional int) (rest []string, code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ExitSuccess, false
		}
		return nil, ExitInvalidArgs, false
	}
	if fs.NArg() != positional {
		fs.Usage()
		return nil, ExitInvalidArgs, false
	}
	return fs.Args(), ExitSuccess, true
}

// setup loads configuration with flag overrides and initializes the logger
func (c *cli) setup(fs *pflag.FlagSet, common *commonFlags) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(common.configPath, fs)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.InitWithOptions(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger.GetZapLogger(), nil
}

// newMetadataClient builds the API client from the api section
func newMetadataClient(cfg *config.Config, log *zap.Logger) *uupapi.Client {
	return uupapi.NewClient(&uupapi.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.GetTimeout(),
		MaxRetries: cfg.API.MaxRetries,
		BaseDelay:  cfg.API.GetBaseDelay(),
		MaxDelay:   cfg.API.GetMaxDelay(),
		UserAgent:  userAgent(cfg),
	}, log)
}

func userAgent(cfg *config.Config) string {
	if cfg.API.UserAgent != "" {
		return cfg.API.UserAgent
	}
	return "uupfetch/" + version
}

// fail prints err and maps it to an exit code
func (c *cli) fail(ctx context.Context, err error) int {
	code := exitCode(ctx, err)
	var apiErr *domain.APIError
	switch {
	case code == ExitInterrupted:
	case errors.As(err, &apiErr):
		fmt.Fprintf(c.stderr, "API error: %s\n", apiErr.Message)
	default:
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
	}
	return code
}

func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return ExitSuccess
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return ExitAPIError
	}
	if errors.Is(err, converter.ErrConverterNotFound) {
		return ExitConverterMissing
	}
	return ExitGeneralError
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
