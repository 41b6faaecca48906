package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/benefit-ledger/internal/adapter/audit"
	"github.com/rl1809/benefit-ledger/internal/adapter/directory"
	"github.com/rl1809/benefit-ledger/internal/adapter/handler"
	"github.com/rl1809/benefit-ledger/internal/adapter/storage"
	"github.com/rl1809/benefit-ledger/internal/core/service"
	"github.com/rl1809/benefit-ledger/internal/platform/config"
	"github.com/rl1809/benefit-ledger/internal/platform/metrics"
	"github.com/rl1809/benefit-ledger/internal/port"
)

// app holds the wired ledger and the connections it owns.
type app struct {
	logger   *zap.Logger
	registry *prometheus.Registry
	db       *sql.DB
	rdb      *redis.Client
	cache    port.CacheRepository
	audit    *audit.Dispatcher
	services handler.Services
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	var (
		store port.LedgerStore
		dir   port.Directory
	)
	switch cfg.Storage {
	case config.StorageMySQL:
		db, err := openMySQL(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		a.db = db
		store = storage.NewMySQLAdapter(db)
		dir = directory.NewMySQLDirectory(db)
		logger.Info("connected to mysql")
	default:
		store = storage.NewMemoryStore()
		dir = seededDirectory(cfg.Directory)
		logger.Info("using in-memory ledger store")
	}

	var locker port.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.rdb = rdb
		a.cache = storage.NewRedisAdapter(rdb, cfg.Redis.BenefitTTL)
		locker = storage.NewRedisLocker(rdb, storage.LockOptions{
			Expiry:     cfg.Lock.Expiry,
			Tries:      cfg.Lock.Tries,
			RetryDelay: cfg.Lock.RetryDelay,
		})
		logger.Info("connected to redis")
	} else {
		locker = storage.NewMemoryLocker(cfg.Lock.Wait)
		logger.Info("redis disabled, using in-process locks")
	}

	var writer audit.Writer = audit.NewLogWriter(logger)
	if cfg.Audit.Sink == config.AuditSinkMySQL {
		writer = audit.NewMySQLWriter(a.db)
	}
	a.audit = audit.NewDispatcher(writer, cfg.Audit.Workers, cfg.Audit.QueueSize, m, logger)

	opts := []service.Option{
		service.WithAuditSink(a.audit),
		service.WithMetrics(m),
		service.WithLogger(logger),
		service.WithTxTimeout(cfg.Ledger.TxTimeout),
	}
	if a.cache != nil {
		opts = append(opts, service.WithCache(a.cache))
	}
	ledger := service.NewLedger(store, locker, opts...)

	a.services = handler.Services{
		Catalog:     service.NewCatalogService(ledger),
		Allocations: service.NewAllocationService(ledger, dir),
		Deliveries:  service.NewDeliveryService(ledger, dir),
		Queries:     service.NewQueryService(ledger),
		Checker:     service.NewInvariantChecker(ledger),
	}
	return a, nil
}

// routes builds the HTTP API with /metrics served from the app registry.
func (a *app) routes() http.Handler {
	h := handler.NewHTTPHandler(a.services, a.cache, a.logger)
	return h.Routes(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
}

// Close drains queued audit events before closing the connections they may use.
func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.logger.Info("connections closed")
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func seededDirectory(seed config.DirectorySeed) *directory.MemoryDirectory {
	dir := directory.NewMemoryDirectory()
	for _, d := range seed.Delegates {
		dir.PutDelegate(d.ID, d.Active)
	}
	for _, id := range seed.Affiliates {
		dir.PutAffiliate(id)
	}
	for _, c := range seed.Children {
		dir.PutChild(c.ID, c.AffiliateID)
	}
	return dir
}
