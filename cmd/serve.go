package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voxpilot/voxpilot/internal/analyzer"
	"github.com/voxpilot/voxpilot/internal/api"
	"github.com/voxpilot/voxpilot/internal/browser"
	"github.com/voxpilot/voxpilot/internal/observability"
	"github.com/voxpilot/voxpilot/internal/planner"
	"github.com/voxpilot/voxpilot/internal/session"
	"github.com/voxpilot/voxpilot/internal/uploads"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intent execution HTTP server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	alloc, err := browser.NewAllocator(ctx, cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer alloc.Close()

	sessions := session.NewManager(alloc.NewPage, cfg.Server.ArtifactsDir, logger)

	store, err := uploads.NewStore(cfg.Server.UploadsDir)
	if err != nil {
		return err
	}

	opts := api.Options{
		Config:   cfg.Server,
		Sessions: sessions,
		Uploads:  store,
		Executor: api.NewEngineExecutor(analyzer.New(logger), store, cfg.Engine.DefaultStepTimeout, logger),
		Logger:   logger,
	}

	// The /api/plan route needs a configured LLM; everything else runs
	// without one.
	if cfg.Planner.APIKey != "" {
		pl, err := planner.New(cfg.Planner, logger)
		if err != nil {
			return err
		}
		opts.Planner = pl
	} else {
		logger.Warn("No planner API key configured; /api/plan is disabled.")
	}

	server := api.NewServer(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("Server stopped.", zap.Error(err))
	return err
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
