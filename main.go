package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/motion.report/internal/version"
)

// Defaults shared by the subcommands
const (
	defaultDBFile = "motion_report.db"
	defaultListen = ":8080"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args(), os.Stdout); err != nil {
		log.Printf("%s: %v", flag.Arg(0), err)
		stop()
		os.Exit(1)
	}
}

// run dispatches a subcommand. Command output goes to out; progress is
// logged.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("missing command")
	}
	command, rest := args[0], args[1:]

	switch command {
	case "analyze":
		return runAnalyze(ctx, rest, out)
	case "serve":
		return runServe(ctx, rest)
	case "migrate":
		return runMigrate(rest)
	case "submit":
		return runSubmit(rest, out, nil)
	case "list":
		return runList(ctx, rest, out)
	case "version":
		fmt.Fprintln(out, version.Get())
		return nil
	case "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `motion-report - joint angle analysis of recorded exercise sequences

Usage: motion-report <command> [options]

Commands:
  analyze    Analyse a sequence against an exercise definition
  serve      Run the HTTP API
  migrate    Manage the database schema (see 'motion-report migrate help')
  submit     Send a sequence and exercise to a running server
  list       List stored analyses
  version    Show version information
  help       Show this help message

Examples:
  motion-report analyze -sequence take1.json -exercise front_raise.json -report-dir out
  motion-report serve -listen :8080 -db motion_report.db
  motion-report submit -server http://localhost:8080 -sequence take1.json -exercise front_raise.json
  motion-report list -tz Europe/London

Run 'motion-report <command> -h' for the options of a command.`)
}
