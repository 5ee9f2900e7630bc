package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odvcencio/semedit/mcpserver"
	"github.com/odvcencio/semedit/mcptools"
	"github.com/odvcencio/semedit/web"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the editing tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := a.newSession()
			srv := mcpserver.New(mcptools.NewRegistry(sess), Version, a.logger.With("session", sess.ID))
			return srv.ServeStdio()
		},
	}
}

func newWebCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the editing tools as JSON-RPC over websockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Web.Addr
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv := web.NewServer(a.newSession, a.cfg.Web.AllowedOrigins, a.logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config web.addr)")
	return cmd
}
