// Package cli implements the mtn command line: global flag handling,
// command dispatch and the per-command handlers.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/amirbrooks/mdbase-tasknotes/internal/config"
	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
	"github.com/amirbrooks/mdbase-tasknotes/internal/format"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
)

var timeNow = time.Now

type GlobalFlags struct {
	Path    string
	JSON    bool
	Verbose bool
	NoColor bool
}

// env is what every command handler receives.
type env struct {
	gf     GlobalFlags
	out    io.Writer
	errOut io.Writer
	p      *format.Printer
	logger *slog.Logger
}

func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr, format.ColorEnabled(os.Stdout))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, color bool) int {
	gf, rest, err := extractGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return ExitFailure
	}
	e := &env{
		gf:     gf,
		out:    stdout,
		errOut: stderr,
		p:      format.NewPrinter(stdout, stderr, color && !gf.NoColor),
		logger: newLogger(stderr, gf.Verbose),
	}

	if len(rest) == 0 {
		printHelp(stdout)
		return ExitFailure
	}
	cmd := rest[0]
	cmdArgs := rest[1:]

	switch cmd {
	case "help", "--help", "-h":
		printHelp(stdout)
		return ExitOK
	case "create", "add":
		return cmdCreate(ctx, e, cmdArgs)
	case "list", "ls":
		return cmdList(ctx, e, cmdArgs)
	case "show":
		return cmdShow(ctx, e, cmdArgs)
	case "complete", "done":
		return cmdComplete(ctx, e, cmdArgs)
	case "archive":
		return cmdArchive(ctx, e, cmdArgs)
	case "delete", "rm":
		return cmdDelete(ctx, e, cmdArgs)
	case "projects":
		return cmdProjects(ctx, e, cmdArgs)
	case "config":
		return cmdConfig(e, cmdArgs)
	case "init":
		return cmdInit(e, cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printHelp(stderr)
		return ExitFailure
	}
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `mtn - markdown tasks in an mdbase collection

Usage:
  mtn [global flags] <command> [args]

Global flags:
  --path <dir>     Collection path (default: $MDBASE_TASKNOTES_PATH, config, or cwd)
  --json           JSON output where the command prints data
  --no-color       Disable colors (also NO_COLOR)
  --verbose        Debug logging on stderr

Commands:
  create <text...>              Create a task from natural language
  list [--status s] [--priority p] [--tag t] [--due date] [--overdue]
       [--where field=value ...] [--limit n]
  show <path|title>
  complete <path|title>
  archive <path|title>
  delete <path|title> [--force]
  projects list [--stats]
  projects show <name>
  config [--set key=value | --get key | --list]
  init [dir] [--force]

Where operators:
  =  !=  <  <=  >  >=  ~ (contains)   field? (exists)
`)
}

func extractGlobalFlags(args []string) (GlobalFlags, []string, error) {
	// Allow flags anywhere by scanning and stripping known globals.
	gf := GlobalFlags{}
	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			out = append(out, args[i:]...)
			return gf, out, nil
		case a == "--path" || a == "-p":
			if i+1 >= len(args) {
				return gf, nil, errors.New(a + " requires a value")
			}
			gf.Path = args[i+1]
			i++
		case strings.HasPrefix(a, "--path="):
			gf.Path = strings.TrimPrefix(a, "--path=")
		case a == "--json":
			gf.JSON = true
		case a == "--no-color":
			gf.NoColor = true
		case a == "--verbose":
			gf.Verbose = true
		default:
			out = append(out, a)
		}
	}
	return gf, out, nil
}

// openCollection resolves and opens the collection, reporting failures to
// the user.
func (e *env) openCollection() (*store.Collection, fieldmap.Mapping, bool) {
	root := config.ResolveCollectionPath(e.gf.Path)
	c, err := store.Open(root, store.WithLogger(e.logger))
	if err != nil {
		e.p.Error(fmt.Sprintf("Failed to open collection at %s: %v", root, err))
		return nil, fieldmap.Mapping{}, false
	}
	return c, fieldmap.ForCollection(c, e.logger), true
}

func toTask(rec store.Record, m fieldmap.Mapping) format.Task {
	return format.Task{Path: rec.Path, Fields: fieldmap.Normalize(rec.Frontmatter, m), Body: rec.Body}
}

// recordJSON flattens a record into {path, ...frontmatter}.
func recordJSON(rec store.Record) map[string]any {
	out := make(map[string]any, len(rec.Frontmatter)+1)
	for k, v := range rec.Frontmatter {
		out[k] = v
	}
	out["path"] = rec.Path
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
