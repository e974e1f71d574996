// Package app provides the top-level application lifecycle for the sniper
// bot. It wires the shared store, the durable log, cold storage, chain
// clients and notifications, then starts the goroutines of the configured
// operating mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/notify"
)

const shutdownNotifyTimeout = 5 * time.Second

// App runs one operating mode to completion.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
}

// New creates an App for cfg.
func New(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		startedAt: time.Now().UTC(),
	}
}

type modeFunc func(*App, context.Context, *Dependencies) error

var modes = map[string]modeFunc{
	config.ModePipeline: (*App).PipelineMode,
	config.ModeReflex:   (*App).ReflexMode,
	config.ModeFull:     (*App).FullMode,
	config.ModeServer:   (*App).ServerMode,
}

// Run wires the dependencies and blocks in the configured mode until ctx is
// cancelled or a component fails. Cancellation is a clean exit.
func (a *App) Run(ctx context.Context) error {
	run, ok := modes[a.cfg.Mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("dry_run", a.cfg.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	deps.Notifier.Go(a.lifecycle(notify.EventStartup, "sniperbot started", notify.SeverityInfo, nil))

	err = run(a, ctx, deps)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.stopped(deps.Notifier, err)
	return err
}

// stopped reports the exit before the dependencies are closed. The parent
// context is already cancelled, so delivery gets a fresh deadline.
func (a *App) stopped(n *notify.Notifier, runErr error) {
	sev, title := notify.SeverityInfo, "sniperbot stopped"
	if runErr != nil {
		sev, title = notify.SeverityError, "sniperbot exited with error"
	}
	a.logger.Info("shutting down", slog.Duration("uptime", time.Since(a.startedAt).Round(time.Second)))
	if !n.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownNotifyTimeout)
	defer cancel()
	if err := n.Notify(ctx, a.lifecycle(notify.EventShutdown, title, sev, runErr)); err != nil {
		a.logger.Warn("shutdown notification failed", slog.String("error", err.Error()))
	}
}

func (a *App) lifecycle(event, title string, sev notify.Severity, cause error) notify.Message {
	msg := notify.Message{
		Event:    event,
		Title:    title,
		Body:     "mode " + a.cfg.Mode,
		Severity: sev,
		Fields: []notify.Field{
			{Name: "dry_run", Value: strconv.FormatBool(a.cfg.DryRun)},
		},
	}
	if event == notify.EventShutdown {
		msg.Fields = append(msg.Fields, notify.Field{
			Name:  "uptime",
			Value: time.Since(a.startedAt).Round(time.Second).String(),
		})
	}
	if cause != nil {
		msg.Body += ": " + cause.Error()
	}
	return msg
}
