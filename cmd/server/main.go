package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"deploygate/internal/deployment/cluster"
	deploymenthandler "deploygate/internal/deployment/handler"
	deploymentservice "deploygate/internal/deployment/service"
	deploymentstore "deploygate/internal/deployment/store"
	"deploygate/internal/identity/credential"
	identityhandler "deploygate/internal/identity/handler"
	identityservice "deploygate/internal/identity/service"
	identitystore "deploygate/internal/identity/store"
	"deploygate/internal/platform/config"
	"deploygate/internal/platform/httpserver"
	"deploygate/internal/platform/kube"
	"deploygate/internal/platform/logger"
	"deploygate/internal/platform/metrics"
	"deploygate/internal/platform/postgres"
	"deploygate/internal/platform/redis"
	httptransport "deploygate/internal/transport/http"
	"deploygate/pkg/platform/audit"
)

const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "", "path to a YAML config file")
	addr := pflag.String("addr", "", "listen address, overrides config")
	recordStore := pflag.String("record-store", "", "deployment record backend: memory, postgres or redis")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *recordStore != "" {
		cfg.RecordStore = *recordStore
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	healthChecks := map[string]httptransport.HealthCheck{}

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		healthChecks["postgres"] = db.PingContext
		log.Info("postgres connected")
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks["redis"] = redisClient.Health
		log.Info("redis connected")
	}

	publisher, closeAudit, err := buildAuditPublisher(ctx, cfg.Audit, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	var users identityservice.UserStore = identitystore.NewInMemoryUserStore()
	if db != nil {
		users = identitystore.NewPostgres(db)
	}

	var records deploymentservice.RecordStore
	switch cfg.RecordStore {
	case config.RecordStorePostgres:
		records = deploymentstore.NewPostgres(db)
	case config.RecordStoreRedis:
		records = deploymentstore.NewRedis(redisClient.Client)
	default:
		records = deploymentstore.NewInMemoryRecordStore()
	}
	log.Info("record store selected", "backend", cfg.RecordStore)

	clientset, err := kube.NewClientset(cfg.Kube)
	if err != nil {
		return err
	}

	jwt := credential.NewJWTService(cfg.JWTSigningKey, cfg.TokenTTL)
	identity := identityservice.New(users, jwt,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(publisher),
		identityservice.WithMetrics(m),
	)
	reconciler := deploymentservice.New(records, cluster.New(clientset, cluster.WithMetrics(m)), identity,
		deploymentservice.WithLogger(log),
		deploymentservice.WithAuditPublisher(publisher),
		deploymentservice.WithMetrics(m),
	)

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:       log,
		Metrics:      m,
		Gatherer:     registry,
		Audit:        publisher,
		Verifier:     jwt,
		Principals:   identity,
		Identity:     identityhandler.New(identity, log),
		Deployments:  deploymenthandler.New(reconciler, log),
		HealthChecks: healthChecks,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting deploygate", "addr", cfg.Addr)
		return httpserver.Run(gctx, srv, cfg.ShutdownTimeout)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("deploygate stopped")
	return nil
}

// buildAuditPublisher always logs audit events and also streams them to
// Kafka when brokers are configured.
func buildAuditPublisher(ctx context.Context, cfg config.AuditConfig, log *slog.Logger) (audit.Publisher, func(), error) {
	logPublisher := audit.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) == 0 {
		return logPublisher, func() {}, nil
	}

	kafka, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	if err := kafka.EnsureTopic(ctx, auditTopicPartitions, auditTopicReplication); err != nil {
		kafka.Close()
		return nil, nil, err
	}
	log.Info("audit events streaming to kafka", "topic", kafka.Topic())
	return audit.Multi{logPublisher, kafka}, kafka.Close, nil
}
