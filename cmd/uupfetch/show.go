package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/vertextoedge/uupfetch/internal/domain"
)

type showOutput struct {
	Meta      *domain.ManifestMeta `json:"meta,omitempty"`
	Languages map[string]string    `json:"languages,omitempty"`
	Editions  []string             `json:"editions,omitempty"`

	// Files holds names only, or full descriptors with --links
	Files interface{} `json:"files,omitempty"`
}

func (c *cli) runShow(ctx context.Context, args []string) int {
	var common commonFlags
	fs := c.newFlagSet("show", "show <update-id> [options]", &common)
	lang := fs.String("lang", "", "Language code (xx-xx)")
	edition := fs.String("edition", "", "Edition name")
	langs := fs.Bool("langs", false, "List available languages")
	editions := fs.Bool("editions", false, "List editions for --lang")
	links := fs.Bool("links", false, "Show file links and metadata")

	rest, code, ok := c.parse(fs, args, 1)
	if !ok {
		return code
	}
	updateID := rest[0]

	if *editions && *lang == "" {
		fmt.Fprintln(c.stderr, "--lang is required when using --editions")
		return ExitInvalidArgs
	}

	cfg, log, err := c.setup(fs, &common)
	if err != nil {
		return c.fail(ctx, err)
	}
	defer log.Sync()

	client := newMetadataClient(cfg, log)
	var out showOutput

	if *langs {
		if out.Languages, err = client.ListLanguages(ctx, updateID); err != nil {
			return c.fail(ctx, err)
		}
	}
	if *editions {
		if out.Editions, err = client.ListEditions(ctx, updateID, *lang); err != nil {
			return c.fail(ctx, err)
		}
	}

	var manifest *domain.Manifest
	if *links || (!*langs && !*editions) {
		if *links {
			manifest, err = client.GetManifest(ctx, updateID, *lang, *edition)
		} else {
			manifest, err = client.GetManifest(ctx, updateID, "", "")
		}
		if err != nil {
			return c.fail(ctx, err)
		}
		out.Meta = &manifest.Meta
		if *links {
			out.Files = manifest.Files
		} else {
			out.Files = manifest.Names()
		}
	}

	if common.json {
		if err := c.printJSON(out); err != nil {
			return c.fail(ctx, err)
		}
		return ExitSuccess
	}

	if out.Meta != nil {
		fmt.Fprintf(c.stdout, "updateName=%s build=%s arch=%s\n", out.Meta.UpdateName, out.Meta.Build, out.Meta.Arch)
	}
	if out.Languages != nil {
		fmt.Fprintln(c.stdout, "Languages:")
		codes := make([]string, 0, len(out.Languages))
		for code := range out.Languages {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Fprintf(c.stdout, "  %s: %s\n", code, out.Languages[code])
		}
	}
	if out.Editions != nil {
		fmt.Fprintln(c.stdout, "Editions:")
		for _, e := range out.Editions {
			fmt.Fprintf(c.stdout, "  %s\n", e)
		}
	}
	if manifest != nil {
		fmt.Fprintln(c.stdout, "Files:")
		for _, name := range manifest.Names() {
			if !*links {
				fmt.Fprintf(c.stdout, "  %s\n", name)
				continue
			}
			fmt.Fprintf(c.stdout, "  %s  size=%s\n", name, formatSize(manifest.Files[name].Size))
		}
	}
	return ExitSuccess
}

func formatSize(size *int64) string {
	if size == nil {
		return "unknown"
	}
	return humanize.IBytes(uint64(*size))
}
