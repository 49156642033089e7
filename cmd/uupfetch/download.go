package main

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/uupfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/uupfetch/internal/adapter/httpsource"
	"github.com/vertextoedge/uupfetch/internal/adapter/sqlite"
	"github.com/vertextoedge/uupfetch/internal/config"
	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/domain/event"
	"github.com/vertextoedge/uupfetch/internal/metrics"
	"github.com/vertextoedge/uupfetch/internal/service/converter"
	"github.com/vertextoedge/uupfetch/internal/service/engine"
)

type downloadOutput struct {
	RunID string              `json:"run_id,omitempty"`
	Meta  domain.ManifestMeta `json:"meta"`
	Dir   string              `json:"dir"`
	Files []fileOutput        `json:"files"`

	ConverterExitCode *int `json:"converter_exit_code,omitempty"`
}

type fileOutput struct {
	Filename     string `json:"filename"`
	Path         string `json:"path"`
	BytesWritten int64  `json:"bytes_written"`
	ResumedFrom  int64  `json:"resumed_from"`
	Verified     bool   `json:"verified"`
	Error        string `json:"error,omitempty"`
}

func (c *cli) runDownload(ctx context.Context, args []string) int {
	var common commonFlags
	fs := c.newFlagSet("download", "download <update-id> [options]", &common)
	lang := fs.String("lang", "", "Language code (xx-xx)")
	edition := fs.String("edition", "", "Edition name")
	fs.String("out", "./uup-downloads", "Destination directory")
	fs.Int("concurrency", 4, "Parallel downloads")
	fs.String("failure-policy", "drain", "On failure: drain (finish other files) or fail-fast")
	fs.Bool("remove-on-mismatch", false, "Delete files whose SHA-1 does not match")
	noResume := fs.Bool("no-resume", false, "Disable resuming partial downloads")
	includeRegex := fs.String("include-regex", "", "Only download files whose names match this regex")
	limit := fs.Int("limit", 0, "Limit number of files to download (smallest by size first)")
	fs.String("journal", "", "Transfer journal database path")
	noJournal := fs.Bool("no-journal", false, "Do not record this run in the transfer journal")
	fs.String("metrics-textfile", "", "Write prometheus metrics to this file after the run")
	convert := fs.Bool("convert", false, "Run the UUP converter after download")
	fs.String("convert-dir", "", "Directory containing convert.sh")
	fs.String("compress", "wim", "Converter compression (wim, esd)")
	fs.Bool("virtual-editions", false, "Enable virtual editions in the converter")

	rest, code, ok := c.parse(fs, args, 1)
	if !ok {
		return code
	}
	updateID := rest[0]

	var include *regexp.Regexp
	if *includeRegex != "" {
		re, err := regexp.Compile(*includeRegex)
		if err != nil {
			fmt.Fprintf(c.stderr, "invalid --include-regex: %v\n", err)
			return ExitInvalidArgs
		}
		include = re
	}

	cfg, log, err := c.setup(fs, &common)
	if err != nil {
		return c.fail(ctx, err)
	}
	defer log.Sync()

	opts, err := engineOptions(cfg, !*noResume)
	if err != nil {
		return c.fail(ctx, err)
	}
	compression, err := converter.ParseCompression(cfg.Converter.Compression)
	if err != nil {
		return c.fail(ctx, err)
	}

	manifest, err := newMetadataClient(cfg, log).GetManifest(ctx, updateID, *lang, *edition)
	if err != nil {
		return c.fail(ctx, err)
	}
	if include != nil {
		manifest = manifest.Filter(include)
	}
	if fs.Changed("limit") {
		manifest = manifest.Limit(*limit)
	}

	outDir := cfg.Download.OutDir
	if !common.json {
		fmt.Fprintf(c.stdout, "Downloading update '%s' build=%s arch=%s (%d files, %s)\n",
			manifest.Meta.UpdateName, manifest.Meta.Build, manifest.Meta.Arch,
			len(manifest.Files), humanize.IBytes(uint64(manifest.TotalDeclaredSize())))
	}

	dispatcher := event.NewInMemoryDispatcher(func(e event.DomainEvent, err error) {
		log.Warn("event handler failed", zap.String("event", e.EventName()), zap.Error(err))
	})
	dispatcher.Subscribe(event.NewLoggingHandler(log))
	dispatcher.Subscribe(event.NewMetricsHandler())

	run := &domain.Run{
		UpdateID:   updateID,
		UpdateName: manifest.Meta.UpdateName,
		Build:      manifest.Meta.Build,
		Arch:       manifest.Meta.Arch,
		DestDir:    outDir,
		FileCount:  len(manifest.Files),
		TotalBytes: manifest.TotalDeclaredSize(),
		StartedAt:  time.Now(),
	}

	var journal *sqlite.Store
	if cfg.Journal.Enabled && !*noJournal {
		journal = openJournal(cfg, run, log)
		if journal != nil {
			defer journal.Close()
			dispatcher.Subscribe(event.NewJournalHandler(run.ID, journal))
		}
	}

	source := httpsource.New(&httpsource.Config{
		HeaderTimeout:   cfg.Download.GetHeaderTimeout(),
		BufferSizeKB:    cfg.Download.ChunkSizeKB,
		MaxConnsPerHost: opts.Concurrency,
		UserAgent:       userAgent(cfg),
	})
	fsManager := filesystem.NewManagerWithBufferSize(cfg.Download.GetChunkSize())
	eng := engine.New(source, fsManager, dispatcher, log, opts)

	results, dlErr := eng.DownloadMany(ctx, manifest, outDir)

	run.Finish(dlErr)
	if journal != nil {
		if err := journal.FinishRun(run); err != nil {
			log.Warn("failed to finish journal run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("failed to write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}

	out := downloadOutput{
		RunID: run.ID,
		Meta:  manifest.Meta,
		Dir:   outDir,
		Files: make([]fileOutput, 0, len(results)),
	}
	for _, r := range results {
		fo := fileOutput{
			Filename:     r.Filename,
			Path:         r.Path,
			BytesWritten: r.BytesWritten,
			ResumedFrom:  r.ResumedFrom,
			Verified:     r.Verified,
		}
		if r.Err != nil {
			fo.Error = r.Err.Error()
		}
		out.Files = append(out.Files, fo)
	}

	if dlErr == nil && *convert {
		rc, err := c.runConverter(ctx, cfg, compression, outDir, log, common.json)
		if err != nil {
			return c.fail(ctx, err)
		}
		out.ConverterExitCode = &rc
		if rc != 0 {
			fmt.Fprintf(c.stderr, "Converter failed with exit code %d\n", rc)
			if common.json {
				_ = c.printJSON(out)
			}
			return rc
		}
	}

	if common.json {
		if err := c.printJSON(out); err != nil {
			return c.fail(ctx, err)
		}
	} else {
		for _, fo := range out.Files {
			if fo.Error != "" {
				fmt.Fprintf(c.stdout, "FAILED %s: %s\n", fo.Filename, fo.Error)
			}
		}
	}

	if dlErr != nil {
		return c.fail(ctx, dlErr)
	}
	if !common.json {
		fmt.Fprintln(c.stdout, "Done.")
	}
	return ExitSuccess
}

// engineOptions maps the download section onto engine options
func engineOptions(cfg *config.Config, resume bool) (engine.Options, error) {
	policy, err := engine.ParsePolicy(cfg.Download.FailurePolicy)
	if err != nil {
		return engine.Options{}, err
	}

	opts := engine.DefaultOptions()
	opts.Concurrency = cfg.Download.Concurrency
	opts.Resume = cfg.Download.Resume && resume
	opts.Policy = policy
	opts.RemoveOnMismatch = cfg.Download.RemoveOnMismatch
	opts.ChunkSize = cfg.Download.GetChunkSize()
	opts.ProgressInterval = cfg.Download.GetProgressInterval()
	return opts, nil
}

// openJournal opens the journal and starts run. The journal is an audit
// trail, so failures are logged and the download continues without it.
func openJournal(cfg *config.Config, run *domain.Run, log *zap.Logger) *sqlite.Store {
	path := cfg.Journal.GetPath()
	store, err := sqlite.Open(path)
	if err != nil {
		log.Warn("transfer journal unavailable", zap.String("path", path), zap.Error(err))
		return nil
	}
	if err := store.StartRun(run); err != nil {
		log.Warn("failed to start journal run", zap.String("path", path), zap.Error(err))
		store.Close()
		return nil
	}
	log.Debug("journal run started", zap.String("run_id", run.ID), zap.String("path", path))
	return store
}

func (c *cli) runConverter(ctx context.Context, cfg *config.Config, compression converter.Compression, outDir string, log *zap.Logger, quiet bool) (int, error) {
	uupDir, err := filepath.Abs(outDir)
	if err != nil {
		return -1, err
	}

	// Converter output would corrupt JSON on stdout
	stdout := c.stdout
	if quiet {
		stdout = c.stderr
	} else {
		fmt.Fprintf(c.stdout, "Running converter from %s on %s ...\n", cfg.Converter.Dir, uupDir)
	}

	rc, err := converter.New(log, stdout, c.stderr).Run(ctx, converter.Options{
		Dir:             cfg.Converter.Dir,
		Compression:     compression,
		VirtualEditions: cfg.Converter.VirtualEditions,
	}, uupDir)
	if err == nil && rc == 0 && !quiet {
		fmt.Fprintln(c.stdout, "Converter finished.")
	}
	return rc, err
}
