package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/investblog/cloudflare-images-sync/internal/app"
	"github.com/investblog/cloudflare-images-sync/internal/auth"
	"github.com/investblog/cloudflare-images-sync/internal/mcpserver"
	"github.com/investblog/cloudflare-images-sync/internal/server"
	"github.com/investblog/cloudflare-images-sync/internal/watcher"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoWorker bool
	NoWatch  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the save hook endpoint, MCP server, job worker and uploads watcher",
		Long: `Serve the HTTP API on CFI_LISTEN_ADDR:

  POST /hooks/save   save events from the host
  /mcp               MCP tools (streamable HTTP)
  GET  /healthz      liveness

Both authenticated routes need a bearer key from CFI_API_KEYS. The job
worker drains the queue in the same process, and when CFI_UPLOADS_DIR is
set, changes to media files trigger a resync of their attachment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoWorker, "no-worker", false, "do not run the job worker")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not watch the uploads directory")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.Config.ParseAPIKeys()
	if err != nil {
		return WrapExitError(ExitCommandError, "parsing API keys", err)
	}

	if len(keys) == 0 {
		return NewExitError(ExitCommandError, "CFI_API_KEYS is required to serve")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := server.NewMux(server.MuxConfig{
		Keys:       auth.NewKeyring(keys),
		Hooks:      a.Hooks,
		Posts:      a.State,
		MCPHandler: newMCPHandler(a, opts.RootOptions),
		Logger:     a.Logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	if !opts.NoWorker {
		g.Go(func() error {
			return a.NewWorker().Run(gctx)
		})
	}

	if !opts.NoWatch && a.Config.UploadsDir != "" {
		g.Go(func() error {
			return watcher.New(a.Config.UploadsDir, a.State, a.Hooks, a.Logger).Watch(gctx)
		})
	}

	g.Go(func() error {
		return server.Run(gctx, a.Config.ListenAddr, mux, a.Config.ShutdownWait, a.Logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "serve", err)
	}

	return nil
}

func newMCPHandler(a *app.App, opts *RootOptions) http.Handler {
	s := mcp.NewServer(&mcp.Implementation{Name: "cfi-sync", Version: opts.Version}, nil)

	mcpserver.RegisterTools(s, mcpserver.Deps{
		Engine:   a.Engine,
		Mappings: a.Mappings,
		Presets:  a.Presets,
		Settings: a.Settings,
		Posts:    a.State,
		Meta:     a.State,
		Logs:     a.Logs,
		Bulk:     a.Bulk,
		NewTester: func(accountID, token string) mcpserver.ConnectionTester {
			return opts.NewTester(accountID, token)
		},
	})

	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}
