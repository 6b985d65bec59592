// Package app provides the top-level application lifecycle management for
// the gas vault service. It wires together all dependencies (stores,
// caches, chain adapters, blob storage, and notifications) and starts the
// appropriate goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/gasvaultlabs/gasvault/internal/config"
	"github.com/gasvaultlabs/gasvault/internal/ledger"
	"github.com/gasvaultlabs/gasvault/internal/service"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until
// the context is cancelled. On return it runs all registered cleanup
// functions.
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

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "remediate":
		return a.RemediateMode(ctx, deps)
	case "archive":
		return a.ArchiveMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
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

// buildVault replays the persisted ledger state and constructs the vault
// service over it.
func (a *App) buildVault(ctx context.Context, deps *Dependencies) (*service.Vault, error) {
	positions, err := deps.Stores.Positions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: replay positions: %w", err)
	}
	fees, err := deps.Stores.Fees.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: replay fees: %w", err)
	}
	if fees == nil {
		fees = new(big.Int)
	}
	destinations, err := deps.Stores.Destinations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: replay destinations: %w", err)
	}

	led := ledger.New()
	led.Load(positions, fees, destinations)

	a.logger.InfoContext(ctx, "ledger state replayed",
		slog.Int("positions", len(positions)),
		slog.Int("destinations", len(destinations)),
		slog.String("accumulated_fees", fees.String()),
	)

	vault := service.NewVault(
		service.Config{
			Admin:      a.cfg.Vault.AdminAddress,
			Operator:   a.cfg.Vault.OperatorAddress,
			DefaultTTL: a.cfg.Vault.PositionTTL.Duration,
		},
		led,
		deps.Custody,
		deps.Deposit,
		deps.Token,
		deps.Venue,
		deps.Bridge,
		deps.Stores,
		deps.SignalBus,
		deps.Notifier,
		a.logger,
	)
	return vault, nil
}
