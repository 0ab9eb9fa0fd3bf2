// Command hwportal is a terminal client for the inventory service: it looks
// up a project's hardware and checks units in or out on the project's behalf.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/tphummel/hwportal/internal/config"
	"github.com/tphummel/hwportal/internal/inventory"
	"github.com/tphummel/hwportal/internal/models"
	"github.com/tphummel/hwportal/internal/session"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	url     string
	user    string
	project string
	verbose bool
}

// run executes one hwportal invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if err := config.LoadEnvFile(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var opts options
	flagSet := pflag.NewFlagSet("hwportal", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.url, "url", cfg.InventoryURL, "inventory service base URL (env INVENTORY_URL)")
	flagSet.StringVarP(&opts.user, "user", "u", cfg.UserID, "user id to act as (env HWPORTAL_USER)")
	flagSet.StringVarP(&opts.project, "project", "p", "", "project id")
	flagSet.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout (env HWPORTAL_TIMEOUT)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")
	showVersion := flagSet.Bool("version", false, "print the version and exit")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintf(stdout, "hwportal %s\n", version)
		return 0
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return 2
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	client, err := inventory.NewClient(opts.url, cfg.Timeout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	client.Logger = logger

	notify := session.WriterNotifier{Out: stdout, Err: stderr}
	s := session.New(client, notify, opts.user, logger)

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "status":
		if len(cmdArgs) > 0 {
			fmt.Fprintf(stderr, "Error: status takes no arguments\n")
			return 2
		}
		if err := s.Lookup(ctx, opts.project); err != nil {
			return 1
		}
		printSnapshot(stdout, s)
		return 0

	case string(models.ActionCheckout), string(models.ActionCheckin):
		if opts.user == "" {
			fmt.Fprintf(stderr, "Error: --user or HWPORTAL_USER is required to %s\n", cmd)
			return 2
		}
		req, err := parseRequests(cmdArgs)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if err := s.Lookup(ctx, opts.project); err != nil {
			return 1
		}
		if err := s.SetRequested(req); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if err := s.Submit(ctx, models.Action(cmd)); err != nil {
			reportUnnotified(stderr, err)
			return 1
		}
		printSnapshot(stdout, s)
		return 0

	case "shell":
		sh := &shell{s: s, in: stdin, out: stdout, errOut: stderr}
		if opts.project != "" {
			sh.exec(ctx, "lookup "+opts.project)
		}
		sh.loop(ctx)
		return 0

	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", cmd)
		printUsage(stderr, flagSet)
		return 2
	}
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: hwportal [flags] <command> [args]

Commands:
  status                      show the project's hardware
  checkout HW=QTY [HW=QTY]... check units out to the project
  checkin HW=QTY [HW=QTY]...  return units from the project
  shell                       interactive session

Flags:
%s`, flagSet.FlagUsages())
}

// parseRequests turns "hw1=3" arguments into requested quantities. Negative
// quantities are passed through so the engine can reject them by name.
func parseRequests(args []string) (map[string]int, error) {
	if len(args) == 0 {
		return nil, errors.New("no hardware given, want HW=QTY")
	}
	req := make(map[string]int, len(args))
	for _, a := range args {
		id, qty, ok := strings.Cut(a, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid request %q, want HW=QTY", a)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q: not an integer", a)
		}
		if _, dup := req[id]; dup {
			return nil, fmt.Errorf("hardware %s given twice", id)
		}
		req[id] = n
	}
	return req, nil
}

// reportUnnotified prints errors that the session returns without notifying.
func reportUnnotified(w io.Writer, err error) {
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNoSnapshot), errors.Is(err, session.ErrStale):
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

func printSnapshot(w io.Writer, s *session.Session) {
	snap, ok := s.Snapshot()
	if !ok {
		fmt.Fprintln(w, "no project loaded")
		return
	}
	fmt.Fprintf(w, "Project %s\n", snap.ProjectID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HARDWARE\tCAPACITY\tAVAILABLE\tCHECKED OUT\tREQUESTED")
	for _, u := range snap.Units {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", u.HardwareID, u.Capacity, u.Available, u.CheckedOut, u.Requested)
	}
	tw.Flush()
}
