package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/vertextoedge/uupfetch/internal/adapter/sqlite"
	"github.com/vertextoedge/uupfetch/internal/domain"
)

type historyOutput struct {
	Runs      []*domain.Run            `json:"runs,omitempty"`
	Transfers []*domain.TransferRecord `json:"transfers,omitempty"`
}

func (c *cli) runHistory(ctx context.Context, args []string) int {
	var common commonFlags
	fs := c.newFlagSet("history", "history [run-id] [options]", &common)
	fs.String("journal", "", "Transfer journal database path")
	limit := fs.Int("limit", 20, "Number of runs to show")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, log, err := c.setup(fs, &common)
	if err != nil {
		return c.fail(ctx, err)
	}
	defer log.Sync()

	path := cfg.Journal.GetPath()
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(c.stderr, "No transfer journal at %s\n", path)
		return ExitGeneralError
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return c.fail(ctx, err)
	}
	defer store.Close()

	var out historyOutput
	if fs.NArg() == 1 {
		if out.Transfers, err = store.ListTransfers(fs.Arg(0)); err != nil {
			return c.fail(ctx, err)
		}
	} else {
		if out.Runs, err = store.ListRuns(*limit); err != nil {
			return c.fail(ctx, err)
		}
	}

	if common.json {
		if err := c.printJSON(out); err != nil {
			return c.fail(ctx, err)
		}
		return ExitSuccess
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	if fs.NArg() == 1 {
		fmt.Fprintln(tw, "FILE\tSTATUS\tWRITTEN\tRESUMED FROM\tERROR")
		for _, t := range out.Transfers {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Filename, t.Status,
				humanize.IBytes(uint64(t.BytesWritten)), humanize.IBytes(uint64(t.ResumedFrom)), t.Error)
		}
	} else {
		fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tUPDATE\tFILES\tSIZE\tERROR")
		for _, r := range out.Runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.StartedAt.Local().Format(time.DateTime),
				r.Status, runTitle(r), r.FileCount, humanize.IBytes(uint64(r.TotalBytes)), r.LastError)
		}
	}
	if err := tw.Flush(); err != nil {
		return c.fail(ctx, err)
	}
	return ExitSuccess
}

func runTitle(r *domain.Run) string {
	if r.UpdateName != "" {
		return r.UpdateName
	}
	return r.UpdateID
}
