package bootstrap

import (
	"context"
	"os"

	"inbox_worker/adapter/in/worker"
	"inbox_worker/config"
	"inbox_worker/core/port/out"
	"inbox_worker/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker wraps the poll loop with its dependencies.
type Worker struct {
	loop   *worker.PollLoop
	deps   *Dependencies
	ctx    context.Context
	cancel context.CancelFunc
	zlog   zerolog.Logger
}

// NewWorker builds the ingestion worker.
func NewWorker(cfg *config.Config, deps *Dependencies) (*Worker, error) {
	providers := make([]out.MailProvider, 0, len(deps.Providers))
	for _, p := range deps.Providers {
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		logger.Warn("No mail providers configured, worker will idle")
	}

	loop := worker.NewPollLoop(
		providers,
		deps.ContactStore,
		deps.Cache,
		deps.Summarizer,
		deps.DraftQueue,
		deps.SheetEngine,
		cfg.PollInterval,
		cfg.FetchLimit,
	)

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{loop: loop, deps: deps, ctx: ctx, cancel: cancel, zlog: zlog}, nil
}

// Start runs the poll loop and blocks until Stop is called.
func (w *Worker) Start() {
	w.zlog.Info().Int("providers", len(w.deps.Providers)).Msg("Starting ingestion worker")
	w.loop.Start()
	<-w.ctx.Done()
}

// Stop shuts the worker down.
func (w *Worker) Stop() {
	w.zlog.Info().Msg("Stopping ingestion worker")
	w.loop.Stop()
	w.cancel()
}

// Dependencies exposes the wired dependency graph.
func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
