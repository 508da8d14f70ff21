package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/yeremiapane/pos-integrity/config"
	"github.com/yeremiapane/pos-integrity/grouping"
	"github.com/yeremiapane/pos-integrity/guard"
	"github.com/yeremiapane/pos-integrity/integrity"
	"github.com/yeremiapane/pos-integrity/kds"
	"github.com/yeremiapane/pos-integrity/metrics"
	"github.com/yeremiapane/pos-integrity/services"
	"github.com/yeremiapane/pos-integrity/storage"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

// app is the wired process: store, engine, services and their collaborators.
type app struct {
	cfg            *config.Config
	db             *gorm.DB
	redis          *redis.Client
	registry       *prometheus.Registry
	hub            *kds.Hub
	pos            *services.PosService
	groups         *grouping.Manager
	reconciliation *services.ReconciliationService
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	utils.ConfigureLogger(cfg.Log.Level, cfg.Log.Format)
	utils.SetJWTSecret(cfg.JWT.Secret)
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &app{cfg: cfg, db: db, hub: kds.NewHub()}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	engineOpts := []integrity.Option{
		integrity.WithMetrics(m),
		integrity.WithLockTTL(cfg.Reconcile.LockTTL),
	}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
		}
		engineOpts = append(engineOpts, integrity.WithLocker(integrity.NewRedisLocker(a.redis, cfg.Redis.LockPrefix)))
		utils.InfoLogger.Infof("Using Redis check locks at %s", cfg.Redis.Addr)
	}

	serviceOpts := []services.ServiceOption{
		services.WithNotifier(a.hub),
		services.WithMetrics(m),
	}
	if cfg.Archive.Enabled {
		archive, err := storage.NewReportArchive(ctx, storage.Config{
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("report archive: %w", err)
		}
		serviceOpts = append(serviceOpts, services.WithArchiver(archive))
	}

	engine := integrity.NewEngine(db, engineOpts...)
	a.reconciliation = services.NewReconciliationService(db, engine, serviceOpts...)
	a.groups = grouping.NewManager(db, grouping.WithNotifier(a.hub), grouping.WithMetrics(m))
	a.pos = services.NewPosService(db, guard.New(db, m), services.WithPosNotifier(a.hub))
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			utils.ErrorLogger.Errorf("Error closing redis: %v", err)
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
