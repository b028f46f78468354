package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/api"
	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/embed"
	"github.com/matheus3301/tgvault/internal/lock"
	"github.com/matheus3301/tgvault/internal/logging"
	"github.com/matheus3301/tgvault/internal/media"
	"github.com/matheus3301/tgvault/internal/outbox"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/search"
	"github.com/matheus3301/tgvault/internal/session"
	"github.com/matheus3301/tgvault/internal/status"
	"github.com/matheus3301/tgvault/internal/store"
	intsync "github.com/matheus3301/tgvault/internal/sync"
)

// Params holds the resolved vault configuration passed to the fx module.
type Params struct {
	VaultName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSource,
			provideEmbedProvider,
			provideIndexer,
			provideSearchEngine,
			provideSyncService,
			provideWatcher,
			provideScheduler,
			provideSender,
			provideDownloader,
			provideMessageService,
			provideSearchService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		// A missing config is a fresh install, not a failure.
		return &config.Config{}, nil
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.VaultName), p.VaultName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.VaultName); err != nil {
		return nil, err
	}
	logger.Info("acquiring vault lock", zap.String("vault", p.VaultName))
	l, err := lock.Acquire(session.Dir(p.VaultName))
	if err != nil {
		return nil, err
	}
	logger.Info("vault lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.VaultName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSource(cfg *config.Config, logger *zap.Logger) remote.Source {
	return remote.NewReplaySource(cfg.Remote.DumpDir, logger)
}

// provideEmbedProvider returns nil when no API key is configured;
// keyword search still works, semantic modes report unavailable.
func provideEmbedProvider(cfg *config.Config, logger *zap.Logger) (embed.Provider, error) {
	if cfg.Embedding.APIKey == "" {
		logger.Info("no embedding API key configured, semantic search disabled")
		return nil, nil
	}
	return embed.NewOpenAIProvider(cfg.Embedding)
}

func provideIndexer(db *store.DB, provider embed.Provider, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *embed.Indexer {
	if provider == nil {
		return nil
	}
	return embed.NewIndexer(db, provider, b, logger, cfg.Embedding.BatchSize)
}

func provideSearchEngine(db *store.DB, provider embed.Provider, logger *zap.Logger) *search.Engine {
	return search.NewEngine(db, provider, logger)
}

func provideSyncService(db *store.DB, source remote.Source, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Service {
	return intsync.NewService(db, source, b, logger, cfg.Sync)
}

func provideWatcher(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Watcher {
	return intsync.NewWatcher(db, b, logger)
}

func provideScheduler(svc *intsync.Service, machine *status.Machine, cfg *config.Config, logger *zap.Logger) *Scheduler {
	return NewScheduler(svc, machine, cfg.Sync, logger)
}

func provideSender(db *store.DB, source remote.Source, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, source, b, logger)
}

func provideDownloader(p Params, db *store.DB, source remote.Source, b *bus.Bus, logger *zap.Logger) *media.Downloader {
	return media.NewDownloader(db, source, b, logger, session.MediaDir(p.VaultName))
}

func provideMessageService(db *store.DB, svc *intsync.Service, b *bus.Bus, logger *zap.Logger) *api.MessageService {
	return api.NewMessageService(db, svc, b, logger)
}

func provideSearchService(engine *search.Engine, logger *zap.Logger) *api.SearchService {
	return api.NewSearchService(engine, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, watcher *intsync.Watcher, scheduler *Scheduler, sender *outbox.Sender, downloader *media.Downloader, indexer *embed.Indexer, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := machine.Transition(status.Idle); err != nil {
				return err
			}

			watcher.Start(context.Background())
			scheduler.Start(context.Background())
			sender.Start(context.Background())
			downloader.Start(context.Background())
			if indexer != nil {
				indexer.Start(context.Background())
			}

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			if indexer != nil {
				indexer.Stop()
			}
			downloader.Stop()
			sender.Stop()
			scheduler.Stop()
			watcher.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
