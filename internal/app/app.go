// Package app provides the top-level application lifecycle for the wallet
// PnL service. It wires dependencies and runs the configured operating mode:
// a one-shot single-wallet computation, a one-shot batch run, or the HTTP
// API server.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/polypnl/internal/config"
	"github.com/alanyoungcy/polypnl/internal/server"
	"github.com/alanyoungcy/polypnl/internal/server/handler"
)

// shutdownGrace bounds how long serve mode waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	wallets []string
	logger  *slog.Logger
	closers []func()
}

// New creates a new App. wallets is the command-line wallet list used by the
// one-shot modes; serve mode ignores it.
func New(cfg *config.Config, wallets []string, logger *slog.Logger) *App {
	return &App{
		cfg:     cfg,
		wallets: wallets,
		logger:  logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, runs the configured mode, and blocks until it
// completes or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "wallet":
		return a.walletMode(ctx, deps)
	case "batch":
		return a.batchMode(ctx, deps)
	case "serve":
		return a.serveMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// walletMode computes one wallet's full result plus its consensus report and
// prints both as JSON to stdout.
func (a *App) walletMode(ctx context.Context, deps *Dependencies) error {
	if len(a.wallets) != 1 {
		return fmt.Errorf("app: wallet mode needs exactly one -wallet address, got %d", len(a.wallets))
	}
	wallet := a.wallets[0]

	result, err := deps.Service.WalletPnl(ctx, wallet)
	if err != nil {
		return fmt.Errorf("app: wallet pnl: %w", err)
	}

	report, err := deps.Service.AssessConfidence(ctx, wallet)
	if err != nil {
		return fmt.Errorf("app: confidence assessment: %w", err)
	}

	return printJSON(map[string]any{
		"pnl":        result,
		"confidence": report,
	})
}

// batchMode scores every requested wallet, archiving and exporting the run
// when those sinks are configured, then prints the reports to stdout.
func (a *App) batchMode(ctx context.Context, deps *Dependencies) error {
	if len(a.wallets) == 0 {
		return fmt.Errorf("app: batch mode needs at least one wallet")
	}

	reports, err := deps.Service.AssessBatch(ctx, a.wallets)
	if err != nil {
		return fmt.Errorf("app: batch assessment: %w", err)
	}

	entries := deps.Service.WalletPnlBatch(ctx, a.wallets)

	return printJSON(map[string]any{
		"results":    entries,
		"confidence": reports,
	})
}

// serveMode starts the HTTP API server and blocks until the context is
// cancelled, then shuts the server down gracefully.
func (a *App) serveMode(ctx context.Context, deps *Dependencies) error {
	// Avoid handing the handler a typed-nil interface when Postgres is off.
	var history handler.ResultHistory
	if deps.ResultStore != nil {
		history = deps.ResultStore
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:     handler.NewHealthHandler(),
			Pnl:        handler.NewPnlHandler(deps.Service, a.logger),
			Confidence: handler.NewConfidenceHandler(deps.Service, history, a.logger),
		},
		a.logger,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("app: encode output: %w", err)
	}
	return nil
}
