package main

import (
	"context"
	"fmt"

	"github.com/vertextoedge/uupfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/uupfetch/internal/service/verifier"
)

func (c *cli) runVerify(ctx context.Context, args []string) int {
	var common commonFlags
	fs := c.newFlagSet("verify", "verify <update-id> [options]", &common)
	lang := fs.String("lang", "", "Language code (xx-xx)")
	edition := fs.String("edition", "", "Edition name")
	fs.String("out", "./uup-downloads", "Directory with the downloaded files")
	path := fs.String("path", "", "Alias for --out")
	fs.Int("concurrency", 4, "Files hashed in parallel")

	rest, code, ok := c.parse(fs, args, 1)
	if !ok {
		return code
	}

	cfg, log, err := c.setup(fs, &common)
	if err != nil {
		return c.fail(ctx, err)
	}
	defer log.Sync()

	manifest, err := newMetadataClient(cfg, log).GetManifest(ctx, rest[0], *lang, *edition)
	if err != nil {
		return c.fail(ctx, err)
	}

	v := verifier.New(filesystem.NewManagerWithBufferSize(cfg.Download.GetChunkSize()), log, cfg.Download.Concurrency)
	dir := cfg.Download.OutDir
	if *path != "" {
		dir = *path
	}
	report, err := v.Verify(ctx, manifest, dir)
	if err != nil {
		return c.fail(ctx, err)
	}

	if common.json {
		if err := c.printJSON(report); err != nil {
			return c.fail(ctx, err)
		}
	} else {
		for _, r := range report.Results {
			switch r.Status {
			case verifier.StatusBadSum:
				fmt.Fprintf(c.stdout, "%-7s %s expected=%s actual=%s\n", r.Status, r.Filename, r.Expected, r.Actual)
			case verifier.StatusError:
				fmt.Fprintf(c.stdout, "%-7s %s: %v\n", r.Status, r.Filename, r.Err)
			default:
				fmt.Fprintf(c.stdout, "%-7s %s\n", r.Status, r.Filename)
			}
		}
		for _, p := range report.Partials {
			fmt.Fprintf(c.stdout, "%-7s %s\n", "PARTIAL", p)
		}
	}

	if !report.OK() {
		fmt.Fprintf(c.stderr, "%d of %d files failed verification\n", report.Failures(), len(report.Results))
		return ExitGeneralError
	}
	return ExitSuccess
}
