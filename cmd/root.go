// Package cmd wires up the CLI flags and dispatches to daemon or
// client mode.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/aeronwang/emacsfork/client"
	"github.com/aeronwang/emacsfork/config"
	"github.com/aeronwang/emacsfork/editor"
	"github.com/aeronwang/emacsfork/server"
	"github.com/aeronwang/emacsfork/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X github.com/aeronwang/emacsfork/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate emacsfork mode.
func Execute(ctx context.Context, args []string) error {
	cfg := &config.Config{}
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("emacsfork", flag.ContinueOnError)

	// ── mode ─────────────────────────────────────────────────────
	fs.BoolVar(&cfg.Daemon, "daemon", cfg.Daemon, "Run the editing server")

	// ── rendezvous ───────────────────────────────────────────────
	fs.StringVarP(&cfg.SocketPath, "socket-name", "s", cfg.SocketPath, "Local-domain socket path")
	fs.StringVarP(&cfg.ServerFile, "server-file", "f", cfg.ServerFile, "Server file naming a TCP endpoint and secret")
	fs.BoolVar(&cfg.UseTCP, "tcp", cfg.UseTCP, "Use a TCP endpoint (daemon: also listen on TCP)")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Daemon TCP bind host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Daemon TCP bind port (0 picks a free one)")

	// ── request ──────────────────────────────────────────────────
	fs.BoolVarP(&cfg.NoWait, "no-wait", "n", false, "Do not wait for the server to finish the files")
	fs.StringArrayVarP(&cfg.Evals, "eval", "e", nil, "Evaluate an expression (repeatable, in order)")
	fs.BoolVarP(&cfg.CreateFrame, "create-frame", "c", false, "Ask for a new graphical surface")
	fs.BoolVar(&cfg.CurrentFrame, "current-frame", false, "Reuse the server's current surface")
	fs.StringVarP(&cfg.Display, "display", "d", "", "Graphical display to open the surface on")
	fs.StringVar(&cfg.ParentID, "parent-id", "", "Embed the surface under an existing window id")
	fs.BoolVarP(&cfg.TTY, "tty", "t", false, "Open a text surface on this terminal")
	fs.StringVarP(&cfg.FrameAttr, "frame-parameters", "F", "", "Surface attribute alist")
	fs.StringVar(&cfg.Dir, "dir", "", "Directory file paths are relative to (default: cwd)")

	// ── timing ───────────────────────────────────────────────────
	var timeoutSec int
	fs.IntVarP(&timeoutSec, "timeout", "w", 0, "Connect/read timeout in seconds")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("emacsfork %s\n", version)
		return nil
	}

	if timeoutSec > 0 {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}
	cfg.Args = fs.Args()

	if cfg.Daemon && cfg.SocketPath == "" && !cfg.UseTCP {
		cfg.SocketPath = config.DefaultSocketPath()
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		return nil
	}

	logger := util.NewLogger(cfg.Verbose)

	if cfg.Daemon {
		if cfg.UseTCP && cfg.Port == 0 {
			port, err := util.FindFreePort()
			if err != nil {
				return err
			}
			cfg.Port = port
		}
		srv, err := server.New(cfg, editor.NewHeadless(logger), logger)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	}
	return runClient(ctx, cfg, logger)
}

// ── client mode ──────────────────────────────────────────────────────

func runClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	c, err := client.Dial(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	req, err := buildRequest(cfg)
	if err != nil {
		return err
	}

	res, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if res.WindowSystemUnsupported {
		logger.Warn().Msg("server has no window system; continuing without a graphical surface")
	}
	if res.Output != "" {
		fmt.Print(res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			fmt.Println()
		}
	}
	return nil
}

// buildRequest translates the parsed flags and positionals into one
// protocol line, preserving the order the server expects: session
// setup, surface choice, then files and expressions.
func buildRequest(cfg *config.Config) (*client.Request, error) {
	req := client.NewRequest()

	dir := cfg.Dir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
	}
	req.Dir(dir)

	if cfg.NoWait {
		req.NoWait()
	}
	switch {
	case cfg.CurrentFrame:
		req.CurrentFrame()
	case cfg.Display != "":
		req.Display(cfg.Display)
	case cfg.ParentID != "":
		req.ParentID(cfg.ParentID)
	case cfg.TTY:
		device, termType, err := invokingTerminal()
		if err != nil {
			return nil, err
		}
		req.TTY(device, termType)
	case cfg.CreateFrame:
		req.WindowSystem()
	}
	if cfg.FrameAttr != "" {
		req.FrameParameters(cfg.FrameAttr)
	}

	// Positionals: +LINE[:COL] markers attach to the following file.
	var pending *position
	for _, arg := range cfg.Args {
		if pos, ok := parsePosition(arg); ok {
			pending = &pos
			continue
		}
		path, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", arg, err)
		}
		if pending != nil {
			req.Position(pending.line, pending.col)
			pending = nil
		}
		req.File(path)
	}

	for _, expr := range cfg.Evals {
		req.Eval(expr)
	}
	return req, nil
}

type position struct{ line, col int }

// parsePosition recognizes +LINE and +LINE:COL arguments.
func parsePosition(arg string) (position, bool) {
	if !strings.HasPrefix(arg, "+") {
		return position{}, false
	}
	lineStr, colStr, hasCol := strings.Cut(arg[1:], ":")
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return position{}, false
	}
	if !hasCol {
		return position{line: line}, true
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return position{}, false
	}
	return position{line: line, col: col}, true
}

// invokingTerminal identifies the controlling terminal for -tty.
func invokingTerminal() (device, termType string, err error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", "", fmt.Errorf("--tty requires a terminal on stdin")
	}
	termType = os.Getenv("TERM")
	if termType == "" {
		return "", "", fmt.Errorf("--tty requires TERM to be set")
	}
	return "/dev/tty", termType, nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `emacsfork – shared editing server v%s

One long-lived daemon edits; short-lived invocations hand it files and
expressions over a local socket or an authenticated TCP endpoint.

Usage:
  emacsfork --daemon [options]                Run the server
  emacsfork [options] [+LINE[:COL]] FILE...   Ask the server to visit files
  emacsfork -e EXPR [-e EXPR...]              Evaluate expressions

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  emacsfork --daemon -s /tmp/ef.sock          Serve on a local socket
  emacsfork --daemon --tcp --port 9999        Serve on TCP, write server file
  emacsfork -s /tmp/ef.sock notes.txt         Visit a file, wait for it
  emacsfork -n +10:4 main.go                  Jump to line 10 col 4, no wait
  emacsfork -e '(+ 1 1)'                      Evaluate and print the result
`)
}
