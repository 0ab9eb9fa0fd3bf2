package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tphummel/hwportal/internal/models"
	"github.com/tphummel/hwportal/internal/session"
)

const shellHelp = `Commands:
  lookup PROJECT           load a project's hardware
  set HW=QTY [HW=QTY]...   set requested quantities
  checkout                 check the requested units out
  checkin                  check the requested units in
  show                     print the loaded project
  help                     show this help
  quit                     leave the shell
`

type shell struct {
	s      *session.Session
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// loop reads commands until quit, end of input or ctx is cancelled.
func (sh *shell) loop(ctx context.Context) {
	sc := bufio.NewScanner(sh.in)
	for {
		fmt.Fprint(sh.out, "hwportal> ")
		if !sc.Scan() {
			fmt.Fprintln(sh.out)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !sh.exec(ctx, sc.Text()) {
			return
		}
	}
}

// exec runs one shell line. It returns false when the shell should exit.
func (sh *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return false
	case "help", "?":
		fmt.Fprint(sh.out, shellHelp)
	case "show":
		printSnapshot(sh.out, sh.s)
	case "lookup":
		if len(args) != 1 {
			sh.fail(errors.New("usage: lookup PROJECT"))
			return true
		}
		if sh.s.Lookup(ctx, args[0]) == nil {
			printSnapshot(sh.out, sh.s)
		}
	case "set":
		req, err := parseRequests(args)
		if err != nil {
			sh.fail(err)
			return true
		}
		if err := sh.s.SetRequested(req); err != nil {
			sh.fail(err)
		}
	case string(models.ActionCheckout), string(models.ActionCheckin):
		if err := sh.s.Submit(ctx, models.Action(cmd)); err != nil {
			reportUnnotified(sh.errOut, err)
			return true
		}
		printSnapshot(sh.out, sh.s)
	default:
		sh.fail(fmt.Errorf("unknown command %q, try help", cmd))
	}
	return true
}

func (sh *shell) fail(err error) {
	fmt.Fprintf(sh.errOut, "Error: %v\n", err)
}
