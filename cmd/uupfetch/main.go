package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitAPIError         = 2
	ExitInvalidArgs      = 2
	ExitConverterMissing = 3
	ExitInterrupted      = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "Interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()

	c := &cli{stdout: stdout, stderr: stderr}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "list":
		return c.runList(ctx, cmdArgs)
	case "show":
		return c.runShow(ctx, cmdArgs)
	case "download":
		return c.runDownload(ctx, cmdArgs)
	case "verify":
		return c.runVerify(ctx, cmdArgs)
	case "history":
		return c.runHistory(ctx, cmdArgs)
	case "version":
		fmt.Fprintln(stdout, version)
		return ExitSuccess
	case "help", "-h", "--help":
		printUsage(stdout)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return ExitInvalidArgs
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: uupfetch <command> [options]

Commands:
  list      List known builds
  show      Show languages, editions or files of an update
  download  Download and verify the files of an update
  verify    Check downloaded files against the published SHA-1 digests
  history   Show recent download runs from the transfer journal
  version   Print the version

Run 'uupfetch <command> -h' for command-specific help.`)
}
