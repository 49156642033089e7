package main

import (
	"context"
	"fmt"
	"time"
)

func (c *cli) runList(ctx context.Context, args []string) int {
	var common commonFlags
	fs := c.newFlagSet("list", "list [options]", &common)
	search := fs.String("search", "", "Search string for builds")
	sortByDate := fs.Bool("sort-by-date", false, "Sort builds by date")

	if _, code, ok := c.parse(fs, args, 0); !ok {
		return code
	}

	cfg, log, err := c.setup(fs, &common)
	if err != nil {
		return c.fail(ctx, err)
	}
	defer log.Sync()

	builds, err := newMetadataClient(cfg, log).ListBuilds(ctx, *search, *sortByDate)
	if err != nil {
		return c.fail(ctx, err)
	}

	if common.json {
		if err := c.printJSON(builds); err != nil {
			return c.fail(ctx, err)
		}
		return ExitSuccess
	}

	for _, b := range builds {
		created := "-"
		if t := b.CreatedAt(); !t.IsZero() {
			created = t.Format(time.DateOnly)
		}
		fmt.Fprintf(c.stdout, "%s  %s  build=%s arch=%s created=%s\n", b.UUID, b.Title, b.Build, b.Arch, created)
	}
	return ExitSuccess
}
