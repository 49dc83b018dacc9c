// Package cmd implements the CLI command structure for planline.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/planline/planline/internal/config"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Run executes the planline CLI.
func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("planline", flag.ContinueOnError)
	fs.Usage = func() {
		printUsage(fs, os.Stderr)
	}
	help := fs.Bool("help", false, "Show help")
	fs.BoolVar(help, "h", false, "Show help")
	showVersion := fs.Bool("version", false, "Show version")
	fs.BoolVar(showVersion, "v", false, "Show version")

	cfg, err := config.Load(fs, args)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *help {
		printUsage(fs, os.Stdout)
		return nil
	}
	if *showVersion {
		fmt.Printf("planline %s\n", Version)
		return nil
	}

	// Determine the subcommand; "view" is the default.
	subcommand := "view"
	remainingArgs := fs.Args()
	if len(remainingArgs) > 0 && !strings.HasPrefix(remainingArgs[0], "-") {
		subcommand = remainingArgs[0]
		remainingArgs = remainingArgs[1:]
	}

	switch subcommand {
	case "view":
		return viewCommand(ctx, cfg)
	case "ls":
		return lsCommand(ctx, cfg, remainingArgs)
	case "move":
		return moveCommand(ctx, cfg, remainingArgs)
	case "shift":
		return shiftCommand(ctx, cfg, remainingArgs)
	case "doctor":
		return doctorCommand(cfg)
	case "version", "--version", "-v":
		fmt.Printf("planline %s\n", Version)
		return nil
	case "help", "--help", "-h":
		printUsage(fs, os.Stdout)
		return nil
	default:
		printUsage(fs, os.Stderr)
		return fmt.Errorf("unknown command: %s", subcommand)
	}
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `planline - interactive timeline scheduling

Usage:
  planline [flags] [command]

Commands:
  view            Open the timeline UI (default)
  ls              List tasks with their grid positions
  move <id> <date>
                  Move a task so it starts on the given date (YYYY-MM-DD)
  shift <days> <id>...
                  Shift the given tasks by a day offset, as one bulk edit
  doctor          Check configuration and validate the task file
  version         Show version

Flags:
`)
	fs.SetOutput(w)
	fs.PrintDefaults()
}
