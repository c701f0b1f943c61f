package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/internal/analyzer"
	"github.com/voxpilot/voxpilot/internal/browser"
	"github.com/voxpilot/voxpilot/internal/engine"
	"github.com/voxpilot/voxpilot/internal/intent"
	"github.com/voxpilot/voxpilot/internal/observability"
	"github.com/voxpilot/voxpilot/internal/uploads"
)

var runCmd = &cobra.Command{
	Use:   "run <plan.json>",
	Short: "Execute a plan file against a fresh browser and print the step results.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlanFile(cmd.Context(), args[0])
	},
}

func runPlanFile(parent context.Context, path string) error {
	logger := observability.GetLogger()

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	plan, err := intent.ValidatePlan(raw)
	if err != nil {
		return fmt.Errorf("plan %s: %w", path, err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	alloc, err := browser.NewAllocator(ctx, cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer alloc.Close()

	page, err := alloc.NewPage()
	if err != nil {
		return err
	}
	defer page.Close()

	store, err := uploads.NewStore(cfg.Server.UploadsDir)
	if err != nil {
		return err
	}

	artifactDir := filepath.Join(cfg.Server.ArtifactsDir, "run-"+uuid.NewString())
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return err
	}
	logger.Info("Executing plan.",
		zap.String("plan", path),
		zap.Int("steps", len(plan.Intents)),
		zap.String("artifact_dir", artifactDir))

	eng := engine.New(engine.Options{
		Page:        page,
		State:       engine.NewMemoryState(),
		Analyzer:    analyzer.New(logger),
		Resolver:    store,
		ArtifactDir: artifactDir,
		StepTimeout: cfg.Engine.DefaultStepTimeout,
		Logger:      logger,
	})
	results := eng.Run(ctx, plan.Intents)

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	failed := 0
	for _, res := range results {
		if !res.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(results))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
