package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuse-dev/kuse/internal/config"
	"github.com/kuse-dev/kuse/internal/journal"
	"github.com/kuse-dev/kuse/internal/logging"
	"github.com/kuse-dev/kuse/internal/mcp"
	"github.com/kuse-dev/kuse/internal/undo"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "journal": true, "trash": true, "backups": true,
	"config": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return isHelpOrVersion(args)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _
  | | ___   _ ___  ___
  | |/ / | | / __|/ _ \
  |   <| |_| \__ \  __/
  |_|\_\\__,_|___/\___|

  Undoable file tools for agents

  Usage: kuse <command> [options]
         kuse --help

  MCP server mode requires piped input.`)
}

// env holds everything a command needs. It is built once per process.
type env struct {
	cfg     *config.Config
	mgr     *undo.Manager
	journal *journal.Journal
	logger  *slog.Logger
	closers []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

// setup loads configuration and opens the journal under baseDir.
func setup(baseDir, workDir string) (*env, error) {
	cfg, err := config.LoadWithRepo(baseDir, workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown tools in disabled_tools: %s (valid: %s)",
			strings.Join(unknown, ", "), strings.Join(mcp.AllToolNames(), ", "))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown types in disabled_types: %s (valid: %s)",
			strings.Join(unknown, ", "), strings.Join(mcp.KnownTypes, ", "))
	}

	fl, err := logging.NewFileLogger(baseDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	e := &env{cfg: cfg, logger: fl.Logger, closers: []func() error{fl.Close}}

	opts := []undo.Option{undo.WithLogger(fl.Logger)}
	if !cfg.JournalDisabled {
		var database *sql.DB
		database, err = journal.Open(baseDir)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		e.closers = append(e.closers, database.Close)
		e.journal = journal.New(database, fl.Logger)
		opts = append(opts, undo.WithJournal(e.journal))
	}
	e.mgr = undo.NewManager(cfg, opts...)
	return e, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before setup (no journal needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	workDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine working directory: %v\n", err)
		os.Exit(1)
	}

	e, err := setup(filepath.Join(homeDir, ".kuse"), workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		app := newCLIApp(e)
		err := app.Run(os.Args)
		e.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		e.Close()
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'kuse --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	err = serve(e, e.cfg.WebAddr)
	e.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
