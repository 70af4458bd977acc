package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kuse-dev/kuse/internal/errors"
	"github.com/kuse-dev/kuse/internal/journal"
	"github.com/kuse-dev/kuse/internal/mcp"
	"github.com/kuse-dev/kuse/internal/web"
)

// newCLIApp creates the CLI application with all commands. e is nil when
// only --help or --version will run.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "kuse",
		Usage:   "Undoable file tools for agents",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(e),
			journalCmd(e),
			trashCmd(e),
			backupsCmd(e),
			configCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server on stdio, optionally with the web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "web", Usage: "Dashboard listen address, e.g. 127.0.0.1:7420 (overrides web_addr)"},
		},
		Action: func(c *cli.Context) error {
			addr := e.cfg.WebAddr
			if c.IsSet("web") {
				addr = c.String("web")
			}
			if err := serve(e, addr); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// serve runs the MCP server until stdin closes. When webAddr is set the
// dashboard runs alongside it on the same undo manager.
func serve(e *env, webAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	webErr := make(chan error, 1)
	if webAddr != "" {
		srv, err := web.NewServer(e.mgr, e.cfg, e.journal, e.logger, Version, webAddr)
		if err != nil {
			return err
		}
		go func() { webErr <- web.Run(ctx, srv, e.logger) }()
	} else {
		webErr <- nil
	}

	err := mcp.Run(e.mgr, e.cfg, e.journal, e.logger, Version)
	stop()
	if werr := <-webErr; werr != nil {
		e.logger.Error("web.failed", "error", werr)
		if err == nil {
			err = werr
		}
	}
	return err
}

// journalCmd creates the journal command.
func journalCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "List audit journal events, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conversation", Aliases: []string{"c"}, Usage: "Only events for this conversation"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: journal.DefaultListLimit, Usage: "Maximum events to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Events to skip"},
		},
		Action: func(c *cli.Context) error {
			if e.journal == nil {
				return outputError(errors.NewInvalidRequest("journal is disabled"))
			}

			output, err := e.journal.List(c.Context, journal.ListInput{
				ConversationID: strings.TrimSpace(c.String("conversation")),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// trashCmd creates the trash command.
func trashCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "trash",
		Usage: "List deleted files held in the trash of the current directory",
		Action: func(c *cli.Context) error {
			files, err := e.mgr.Trash()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"files": files})
		},
	}
}

// backupsCmd creates the backups command.
func backupsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "backups",
		Usage: "List content backups held under the current directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conversation", Aliases: []string{"c"}, Usage: "Only backups for this conversation"},
		},
		Action: func(c *cli.Context) error {
			files, err := e.mgr.Backups(strings.TrimSpace(c.String("conversation")))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"files": files})
		},
	}
}

// configCmd creates the config command.
func configCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration",
		Action: func(c *cli.Context) error {
			root, err := e.mgr.StateRoot()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{
				"config":        e.cfg,
				"state_root":    root,
				"enabled_tools": mcp.EnabledTools(e.cfg, e.journal != nil),
			})
		},
	}
}

// Helper functions

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var kErr *errors.KuseError
	if stderrors.As(err, &kErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", kErr.Code, kErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
