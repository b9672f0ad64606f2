// Command foodspend imports food-delivery receipts from mbox archives and
// reports on what was spent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks bad invocations. They exit with exitUsage.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"ingest", "<archive> [-v] [-since-last-run]", "import orders from an mbox archive", runIngest},
	{"stats", "", "show overall spend summary", runStats},
	{"year-wise", "", "show spend per calendar year", runYearWise},
	{"month-wise", "[-month M] <year>", "show spend per month of a year", runMonthWise},
	{"restaurants", "[-n N] [-by spend|count] [-name NAME]", "rank restaurants", runRestaurants},
	{"export", "<output> [-format json|csv|xlsx]", "write all orders and aggregates to a file", runExport},
	{"query", "<name> | -list", "run a bundled SQL report", runQuery},
	{"sample", "<output.mbox>", "write a demo archive", runSample},
	{"status", "", "show database and last ingest", runStatus},
}

// env carries the process streams into commands.
type env struct {
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	e := &env{stdout: stdout, stderr: stderr}

	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout)
		return exitOK
	}

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(ctx, e, args[1:])
		switch {
		case err == nil:
			return exitOK
		case errors.Is(err, flag.ErrHelp):
			return exitOK
		}
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(stderr, "foodspend %s: %v\nusage: foodspend %s %s\n", c.name, err, c.name, c.args)
			return exitUsage
		}
		fmt.Fprintf(stderr, "foodspend %s: %v\n", c.name, err)
		return exitFailure
	}

	fmt.Fprintf(stderr, "foodspend: unknown command %q\n\n", args[0])
	printUsage(stderr)
	return exitUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: foodspend <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every command accepts -db <path> and -config <file>.")
	fmt.Fprintln(w, "Run 'foodspend <command> -h' for command flags.")
}

// newFlagSet returns a flag set with the flags shared by every command.
func newFlagSet(e *env, name string) (*flag.FlagSet, *globalFlags) {
	fs := flag.NewFlagSet("foodspend "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)

	g := &globalFlags{}
	fs.StringVar(&g.db, "db", "", "SQLite database path (overrides db_path)")
	fs.StringVar(&g.config, "config", "", "JSON config file (default "+configHint+")")
	return fs, g
}

// parseArgs parses flags that may appear before, between or after positional
// arguments and returns the positional ones.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, &usageError{msg: err.Error()}
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// exactArgs checks the positional argument count.
func exactArgs(args []string, n int, what string) error {
	switch {
	case len(args) < n:
		return usagef("missing %s", what)
	case len(args) > n:
		return usagef("unexpected arguments: %v", args[n:])
	}
	return nil
}
