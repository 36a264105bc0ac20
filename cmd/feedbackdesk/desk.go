package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/feedbackdesk/internal/app"
	"github.com/kalambet/feedbackdesk/internal/auth"
	"github.com/kalambet/feedbackdesk/internal/client"
	"github.com/kalambet/feedbackdesk/internal/config"
	"github.com/kalambet/feedbackdesk/internal/events"
	"github.com/kalambet/feedbackdesk/internal/form"
	"github.com/kalambet/feedbackdesk/internal/session"
	"github.com/kalambet/feedbackdesk/internal/view"
)

// desk is one wired client stack: API client, session, controllers, orchestrator.
type desk struct {
	cfg    config.Config
	logger *slog.Logger
	client *client.Client
	bus    *events.Bus
	auth   *auth.Controller
	form   *form.Controller
	app    *app.Orchestrator
}

type deskOptions struct {
	confirmer app.Confirmer
	notifier  app.Notifier
	sessions  session.Backend
	logOutput io.Writer
}

// loadDesk builds the stack for a command from the user's config. Tests
// replace it to point at a local server.
var loadDesk = func(cmd *cobra.Command) (*desk, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if !cfg.UI.Color {
		noColor = true
	}
	// Commands report info-level events themselves.
	if strings.EqualFold(cfg.Log.Level, "info") {
		cfg.Log.Level = "warn"
	}
	return newDesk(cfg, deskOptions{
		confirmer: promptConfirmer(cmd),
		notifier:  cliNotifier{},
		sessions:  config.NewFileBackend(sessionFilePath(cfg)),
		logOutput: os.Stderr,
	}), nil
}

func sessionFilePath(cfg config.Config) string {
	return filepath.Join(cfg.Storage.DataDir, "session.json")
}

func newLogger(level string, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func newDesk(cfg config.Config, opts deskOptions) *desk {
	if opts.logOutput == nil {
		opts.logOutput = io.Discard
	}
	logger := newLogger(cfg.Log.Level, opts.logOutput)

	c := client.New(cfg.API.BaseURL,
		client.WithTimeout(cfg.APITimeout()),
		client.WithLogger(logger),
	)
	bus := events.NewBus()
	ac := auth.NewController(c, session.NewStore(opts.sessions), bus, logger)
	fc := form.NewController(c, ac, bus)
	orch := app.New(app.Deps{
		API:       c,
		Session:   ac,
		Editor:    fc,
		Bus:       bus,
		Confirmer: opts.confirmer,
		Notifier:  opts.notifier,
		Logger:    logger,
	})

	return &desk{cfg: cfg, logger: logger, client: c, bus: bus, auth: ac, form: fc, app: orch}
}

// newForm returns a form sharing the desk's client, session and bus.
func (d *desk) newForm() *form.Controller {
	return form.NewController(d.client, d.auth, d.bus)
}

func (d *desk) renderer(cmd *cobra.Command) view.Renderer {
	return view.Renderer{W: cmd.OutOrStdout(), Color: !noColor}
}

// stdinConfirmer asks on the terminal before destructive actions.
type stdinConfirmer struct {
	in  *bufio.Reader
	out io.Writer
	yes bool
}

func promptConfirmer(cmd *cobra.Command) *stdinConfirmer {
	yes, _ := cmd.Flags().GetBool("yes")
	return &stdinConfirmer{in: bufio.NewReader(cmd.InOrStdin()), out: stderr, yes: yes}
}

func (c *stdinConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	if c.yes {
		return true, nil
	}
	fmt.Fprintf(c.out, "%s [y/N] ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
