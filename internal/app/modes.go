package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/gasvaultlabs/gasvault/internal/archive"
	"github.com/gasvaultlabs/gasvault/internal/domain"
	"github.com/gasvaultlabs/gasvault/internal/platform/evm"
	"github.com/gasvaultlabs/gasvault/internal/server"
	"github.com/gasvaultlabs/gasvault/internal/server/handler"
	"github.com/gasvaultlabs/gasvault/internal/server/middleware"
	"github.com/gasvaultlabs/gasvault/internal/server/ws"
	"github.com/gasvaultlabs/gasvault/internal/service"
)

// ServeMode runs the HTTP + WebSocket API over the vault service.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	vault, err := a.buildVault(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, vault)
	return g.Wait()
}

// RemediateMode runs only the stuck-delivery remediation worker. Useful as
// a sidecar next to a serve-mode replica.
func (a *App) RemediateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting remediate mode")

	vault, err := a.buildVault(ctx, deps)
	if err != nil {
		return err
	}

	worker := service.NewRemediationWorker(
		vault, deps.LockManager, a.cfg.Vault.RemediationInterval.Duration, a.logger)
	return worker.Run(ctx)
}

// ArchiveMode runs only the lifecycle-record archive scheduler.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires archive.enabled = true")
	}
	sched := archive.NewScheduler(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	return sched.RunCron(ctx, a.cfg.Archive.Schedule)
}

// FullMode runs every subsystem: the API server, the remediation worker,
// and, when enabled, the archive scheduler.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	vault, err := a.buildVault(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	worker := service.NewRemediationWorker(
		vault, deps.LockManager, a.cfg.Vault.RemediationInterval.Duration, a.logger)
	g.Go(func() error {
		return worker.Run(ctx)
	})

	if deps.Archiver != nil {
		sched := archive.NewScheduler(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error {
			return sched.RunCron(ctx, a.cfg.Archive.Schedule)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, vault)
	}

	return g.Wait()
}

// startHTTPServer adds the WebSocket hub and HTTP server goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	vault *service.Vault,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	newVenue := func(addr string) (domain.SwapVenue, error) {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%q is not a hex address", addr)
		}
		return evm.NewAMMVenue(deps.EVM, addr,
			a.cfg.Contracts.DepositAsset, a.cfg.Contracts.LockedAsset), nil
	}
	newBridge := func(addr string) (domain.Bridge, error) {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%q is not a hex address", addr)
		}
		return evm.NewContractBridge(deps.EVM, addr), nil
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			RoleKeys: middleware.RoleKeys{
				AdminKey:     a.cfg.Server.AdminAPIKey,
				AdminAddr:    a.cfg.Vault.AdminAddress,
				OperatorKey:  a.cfg.Server.OperatorAPIKey,
				OperatorAddr: a.cfg.Vault.OperatorAddress,
			},
			RateLimit:  a.cfg.Server.RateLimitPerMin,
			RateWindow: time.Minute,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Vault:     handler.NewVaultHandler(vault, a.logger),
			Positions: handler.NewPositionHandler(vault, a.logger),
			Admin:     handler.NewAdminHandler(vault, deps.Stores.Audit, newVenue, newBridge, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
