package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/gasvaultlabs/gasvault/internal/blob/s3"
	"github.com/gasvaultlabs/gasvault/internal/cache/redis"
	"github.com/gasvaultlabs/gasvault/internal/config"
	"github.com/gasvaultlabs/gasvault/internal/crypto"
	"github.com/gasvaultlabs/gasvault/internal/domain"
	"github.com/gasvaultlabs/gasvault/internal/notify"
	"github.com/gasvaultlabs/gasvault/internal/platform/evm"
	"github.com/gasvaultlabs/gasvault/internal/service"
	"github.com/gasvaultlabs/gasvault/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Stores service.Stores

	// Redis
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Chain adapters
	EVM     *evm.Client
	Custody domain.Custody // locked asset
	Deposit domain.Custody // deposit asset
	Token   domain.PositionToken
	Venue   domain.SwapVenue // nil until configured
	Bridge  domain.Bridge    // nil until configured

	// Blob archival; nil unless archive is enabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Stores = service.Stores{
		Positions:    postgres.NewPositionStore(pool),
		Destinations: postgres.NewDestinationStore(pool),
		Fees:         postgres.NewFeeStore(pool),
		Records:      postgres.NewRecordStore(pool),
		Deliveries:   postgres.NewDeliveryStore(pool),
		Audit:        postgres.NewAuditStore(pool),
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Chain ---
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Chain.PrivateKey,
		EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
		KeyPassword:      cfg.Chain.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load signing key: %w", err)
	}

	evmClient, err := evm.NewClient(ctx, cfg.Chain.RPCURL, key, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: evm: %w", err)
	}
	closers = append(closers, evmClient.Close)

	deps.EVM = evmClient
	deps.Custody = evm.NewERC20(evmClient, cfg.Contracts.LockedAsset)
	deps.Deposit = evm.NewERC20(evmClient, cfg.Contracts.DepositAsset)
	deps.Token = evm.NewPositionToken(evmClient, cfg.Contracts.PositionToken)
	if cfg.Contracts.VenueRouter != "" {
		deps.Venue = evm.NewAMMVenue(evmClient, cfg.Contracts.VenueRouter,
			cfg.Contracts.DepositAsset, cfg.Contracts.LockedAsset)
	}
	if cfg.Contracts.Bridge != "" {
		deps.Bridge = evm.NewContractBridge(evmClient, cfg.Contracts.Bridge)
	}

	// --- S3 blob storage (only when archival is on) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Stores.Records,
			deps.Stores.Audit,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
