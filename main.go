package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/FASALGAF00R/Campuscore-backend/config"
	"github.com/FASALGAF00R/Campuscore-backend/handlers"
	"github.com/FASALGAF00R/Campuscore-backend/kafka"
	"github.com/FASALGAF00R/Campuscore-backend/limiter"
	"github.com/FASALGAF00R/Campuscore-backend/metrics"
	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/FASALGAF00R/Campuscore-backend/redis"
	"github.com/FASALGAF00R/Campuscore-backend/server"
	"github.com/FASALGAF00R/Campuscore-backend/services"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := pflag.String("config", config.DefaultPath, "path to the YAML config file")
	addr := pflag.String("addr", "", "listen address, overrides server.addr")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("campus_core_exited", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// instanceID names this process in kafka consumer groups and envelopes.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "campus"
	}
	return host + "-" + uuid.NewString()[:8]
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if err := models.AutoMigrateAll(db); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		presenceOpts = []services.PresenceOption{services.WithPresenceMetrics(m)}
		online       handlers.OnlineLister
		rateLimiter  *limiter.Manager
	)
	if cfg.Redis.Addr != "" {
		rc, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Warn("redis_unavailable_presence_local_only", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			defer rc.Close()
			strategy, err := limiter.NewStrategy(cfg.Limiter.Strategy)
			if err != nil {
				return err
			}
			presenceOpts = append(presenceOpts, services.WithPresenceMirror(rc))
			online = rc
			rateLimiter = limiter.NewManager(rc.Client, strategy, cfg.Limiter.Limit, cfg.Limiter.Window)
		}
	}
	registry := services.NewPresenceRegistry(logger.Named("presence"), presenceOpts...)

	g, gctx := errgroup.WithContext(ctx)

	var broadcaster services.Broadcaster = registry
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		id := instanceID()
		sc, err := kafka.NewSaramaConfig(&cfg.Kafka, id)
		if err != nil {
			return err
		}
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, sc, logger.Named("kafka"))
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()
		broadcaster = kafka.NewRelay(producer, cfg.Kafka.Topic, id, registry, logger.Named("relay"))

		handler := kafka.NewEnvelopeHandler(registry, id, logger.Named("relay"))
		consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, kafka.GroupID(cfg.Kafka.GroupPrefix, id),
			[]string{cfg.Kafka.Topic}, sc, handler, logger.Named("kafka"))
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		g.Go(func() error { return consumer.Start(gctx) })
		logger.Info("kafka_relay_enabled", zap.String("instance", id), zap.String("topic", cfg.Kafka.Topic))
	}

	ledger := services.NewLedger(db, cfg.Ledger.TTL)
	directory := services.NewDirectory(db)
	dispatcher := services.NewDispatcher(ledger, broadcaster, logger.Named("dispatcher"), m)
	engine := services.NewEngine(db, directory, dispatcher, logger.Named("lifecycle"), services.WithEngineMetrics(m))

	srv := server.NewServer(server.Deps{
		Config:      &cfg,
		DB:          db,
		Logger:      logger,
		Auth:        services.NewAuthService(cfg.Auth),
		Directory:   directory,
		Engine:      engine,
		Ledger:      ledger,
		Registry:    registry,
		Broadcaster: broadcaster,
		Online:      online,
		Limiter:     rateLimiter,
		Gatherer:    reg,
	})

	g.Go(srv.Start)
	g.Go(func() error {
		err := ledger.RunPurgeSchedule(gctx, cfg.Ledger.PurgeCron, logger.Named("ledger"))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		dispatcher.Wait()
		if consumer != nil {
			if cerr := consumer.Close(); cerr != nil {
				logger.Warn("kafka_consumer_close_failed", zap.Error(cerr))
			}
		}
		return err
	})

	return g.Wait()
}
