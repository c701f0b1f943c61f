package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/api/schemas"
	"github.com/voxpilot/voxpilot/internal/analyzer"
	"github.com/voxpilot/voxpilot/internal/engine"
	"github.com/voxpilot/voxpilot/internal/session"
)

// EngineExecutor is the production Executor: it builds an engine around the
// session's page and artifact directory for each request.
type EngineExecutor struct {
	analyzer    *analyzer.Analyzer
	resolver    engine.Resolver
	stepTimeout time.Duration
	logger      *zap.Logger
}

func NewEngineExecutor(an *analyzer.Analyzer, resolver engine.Resolver, stepTimeout time.Duration, logger *zap.Logger) *EngineExecutor {
	return &EngineExecutor{
		analyzer:    an,
		resolver:    resolver,
		stepTimeout: stepTimeout,
		logger:      logger,
	}
}

func (x *EngineExecutor) Execute(ctx context.Context, sess *session.Session, intents []schemas.Intent) ([]schemas.StepResult, error) {
	dir, err := sess.Dir()
	if err != nil {
		return nil, err
	}
	eng := engine.New(engine.Options{
		Page:        sess.Page(),
		State:       sess,
		Analyzer:    x.analyzer,
		Resolver:    x.resolver,
		ArtifactDir: dir,
		StepTimeout: x.stepTimeout,
		Logger:      x.logger.With(zap.String("session_id", sess.ID())),
	})
	return eng.Run(ctx, intents), nil
}
