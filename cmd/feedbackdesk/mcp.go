package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/feedbackdesk/internal/api"
	"github.com/kalambet/feedbackdesk/internal/config"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve feedback tools over MCP (stdio)",
	Long: `Serve feedback tools to an MCP client over stdin/stdout. Admin tools use
the session stored by ` + "`feedbackdesk login`" + `.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// stdout carries the protocol; everything else goes to stderr.
		d := newDesk(cfg, deskOptions{
			confirmer: api.ContextConfirmer{},
			sessions:  config.NewFileBackend(sessionFilePath(cfg)),
			logOutput: os.Stderr,
		})
		slog.SetDefault(d.logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := d.app.Init(ctx); err != nil {
			return err
		}

		mcpSrv := api.NewMCPServer(api.MCPDeps{App: d.app, Auth: d.auth, NewForm: d.newForm})
		stdioSrv := server.NewStdioServer(mcpSrv)
		d.logger.Info("MCP server started (stdio transport)", "api", d.client.BaseURL())
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}
