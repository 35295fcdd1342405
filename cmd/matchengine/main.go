// Command matchengine runs the matching cycle scheduler, the kline
// aggregator's sweep loop and the Prometheus metrics endpoint as one
// process (spec §5 "Process model"), wired with go.uber.org/fx the way
// cmd/marketdata/main.go wires its gRPC server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vantra-labs/matchcore/internal/config"
	"github.com/vantra-labs/matchcore/internal/kline"
	"github.com/vantra-labs/matchcore/internal/matching"
	"github.com/vantra-labs/matchcore/internal/publish"
	"github.com/vantra-labs/matchcore/internal/store"
)

func main() {
	app := fx.New(
		fx.Provide(
			loadConfig,
			newLogger,
			newGormDB,
			newSqlxDB,
			newOrderStore,
			newKlineStore,
			newJobLedger,
			newMatcherStore,
			newPublisher,
			newEngine,
			newScheduler,
			newSweeper,
		),
		fx.Invoke(
			runMigrations,
			startMetricsServer,
			startScheduler,
			startSweeper,
		),
	)

	app.Run()
}

func loadConfig() (*config.Config, error) {
	return config.Load("config.yaml")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return config.NewLogger(cfg.Logging)
}

func newGormDB(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
}

func newSqlxDB(cfg *config.Config) (*sqlx.DB, error) {
	return sqlx.Connect("postgres", cfg.Database.DSN())
}

func newOrderStore(db *gorm.DB, logger *zap.Logger) *store.OrderStore {
	return store.NewOrderStore(db, logger)
}

func newKlineStore(db *gorm.DB, logger *zap.Logger) *store.KlineStore {
	return store.NewKlineStore(db, logger)
}

func newJobLedger(db *sqlx.DB) *store.JobLedger {
	return store.NewJobLedger(db)
}

func newMatcherStore(db *gorm.DB, logger *zap.Logger) *store.MatcherStore {
	return store.NewMatcherStore(db, logger)
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (publish.Publisher, error) {
	return publish.NewWatermillPublisher(cfg.Publish.NatsURL, cfg.Publish.TopicPrefix, cfg.Publish.BestEffort, 200*time.Millisecond, logger)
}

func newEngine(orderStore *store.OrderStore, jobLedger *store.JobLedger, matcherStore *store.MatcherStore, publisher publish.Publisher, cfg *config.Config, logger *zap.Logger) *matching.Engine {
	engineCfg := matching.EngineConfig{
		LockTimeout:        cfg.Matching.LockTimeout(),
		BatchSize:          cfg.Matching.DefaultBatchSize,
		BreakerMaxFailures: uint32(cfg.Matching.BreakerMaxFailures),
		BreakerOpenTimeout: cfg.Matching.BreakerOpenTimeout,
	}
	return matching.NewEngine(orderStore, jobLedger, matcherStore, publisher, engineCfg, logger)
}

func newScheduler(engine *matching.Engine, matcherStore *store.MatcherStore, cfg *config.Config, logger *zap.Logger) (*matching.Scheduler, error) {
	return matching.NewScheduler(engine, matcherStore, cfg.Matching.MatchIntervalDuration(), cfg.Matching.WorkerPoolSize, logger)
}

func newSweeper(klineStore *store.KlineStore, publisher publish.Publisher, orderStore *store.OrderStore, logger *zap.Logger) *kline.Sweeper {
	agg := kline.NewAggregator(klineStore, publisher, logger)
	symbols := func() []string {
		syms, err := orderStore.ListSymbols(context.Background())
		if err != nil {
			logger.Warn("failed to list symbols for kline sweep", zap.Error(err))
			return nil
		}
		return syms
	}
	return kline.NewSweeper(agg, symbols, logger)
}

func runMigrations(orderStore *store.OrderStore, klineStore *store.KlineStore, jobLedger *store.JobLedger, matcherStore *store.MatcherStore, cfg *config.Config, logger *zap.Logger) error {
	if err := orderStore.Migrate(); err != nil {
		return fmt.Errorf("migrate order store: %w", err)
	}
	if err := klineStore.Migrate(); err != nil {
		return fmt.Errorf("migrate kline store: %w", err)
	}
	if err := jobLedger.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrate job ledger: %w", err)
	}
	if err := matcherStore.Migrate(); err != nil {
		return fmt.Errorf("migrate matcher store: %w", err)
	}

	// Bootstrap a default OrderMatcher row for every symbol with working
	// orders that doesn't have one yet; an operator-facing admin surface
	// for activating/deactivating matchers is out of this process's scope
	// (spec §1 non-goals), so this is the only place new symbols get one.
	symbols, err := orderStore.ListSymbols(context.Background())
	if err != nil {
		return fmt.Errorf("list symbols for matcher bootstrap: %w", err)
	}
	for _, symbol := range symbols {
		if err := matcherStore.EnsureMatcher(symbol, cfg.Matching.DefaultBatchSize); err != nil {
			return fmt.Errorf("ensure matcher for %s: %w", symbol, err)
		}
	}

	logger.Info("migrations complete")
	return nil
}

func startMetricsServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.Metrics.Address, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

func startScheduler(lc fx.Lifecycle, scheduler *matching.Scheduler, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go scheduler.Run(ctx)
			logger.Info("matching scheduler started")
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startSweeper(lc fx.Lifecycle, sweeper *kline.Sweeper, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sweeper.Run(ctx)
			logger.Info("kline sweeper started")
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
