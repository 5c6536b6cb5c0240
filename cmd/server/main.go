// main wires the platform clients, the audit chain, the domain services and
// the HTTP surface, then runs the server and the audit worker until a signal
// arrives. Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"aegis/internal/audit"
	"aegis/internal/entitlement"
	"aegis/internal/pipeline"
	"aegis/internal/platform/config"
	"aegis/internal/platform/httpserver"
	"aegis/internal/platform/logger"
	"aegis/internal/platform/postgres"
	platformredis "aegis/internal/platform/redis"
	"aegis/internal/policy"
	"aegis/internal/ratelimit"
	"aegis/internal/replay"
	"aegis/internal/risk"
	"aegis/internal/session"
	httptransport "aegis/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	// Audit chain: restore the head from the durable sink so restarts keep
	// linking instead of starting a second genesis.
	head := audit.GenesisHash
	var sinks []audit.Sink
	var auditReader httptransport.AuditReader
	if pool != nil {
		pgSink := audit.NewPostgresSink(pool)
		if h, err := pgSink.Head(ctx); err != nil {
			log.Error("audit head restore failed", "error", err)
			os.Exit(1)
		} else {
			head = h
		}
		sinks = append(sinks, pgSink)
		auditReader = pgSink
	}

	var kafkaClient *kgo.Client
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err = kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.Topic),
		)
		if err != nil {
			log.Error("kafka connect failed", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()
		sinks = append(sinks, audit.NewKafkaSink(kafkaClient, cfg.Kafka.Topic))
	}

	auditLog := audit.NewLog(audit.Options{
		Head:          head,
		QueueDepth:    cfg.Audit.QueueDepth,
		EnqueueBudget: cfg.Audit.EnqueueTimeout,
	}, log)
	dlq := audit.NewRedisDeadLetter(rdb.Client, 100_000)
	worker := audit.NewWorker(auditLog.Records(), sinks, dlq, cfg.Audit.MaxAttempts, cfg.Audit.BaseBackoff, log)

	// Stores and services.
	sessions := session.NewRedis(rdb.Client, cfg.Session.TTL, cfg.Session.IndexMargin, auditLog)

	var entStore entitlement.Store
	if pool != nil {
		entStore = entitlement.NewPostgres(pool)
	} else {
		entStore = entitlement.NewMemory()
	}
	entitlements := entitlement.NewService(entStore, sessions, auditLog, log)

	riskEngine := risk.NewEngine(cfg.Risk.Weight, risk.Thresholds{
		Medium:   cfg.Risk.MediumThreshold,
		High:     cfg.Risk.HighThreshold,
		Critical: cfg.Risk.CriticalThreshold,
	})
	riskSvc := risk.NewService(riskEngine, sessions, auditLog, risk.DefaultSeverities(), log)

	limiter := ratelimit.New(rdb.Client, cfg.RateLimit.Window, ratelimit.Caps{
		Low:        cfg.RateLimit.Low,
		Medium:     cfg.RateLimit.Medium,
		High:       cfg.RateLimit.High,
		DefaultCap: cfg.RateLimit.DefaultCap,
	})

	engine, cleanup, err := buildPolicyEngine(ctx, cfg.Policy)
	if err != nil {
		log.Error("policy engine init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()
	cached := policy.NewCache(engine, rdb.Client, cfg.Policy.CacheTTL, log)

	tenants := make(map[string]policy.TenantFacts, len(cfg.Tenants))
	for id, t := range cfg.Tenants {
		tenants[id] = policy.TenantFacts{Plan: t.Plan, Throttled: t.Throttled}
	}
	builder := policy.NewInputBuilder(policy.NewStaticTenantDirectory(tenants, ""), entitlements)

	parser := pipeline.NewCredentialParser(cfg.JWTKey, "aegis")
	guard := replay.New(rdb.Client, cfg.Replay.TTL)
	chain := pipeline.New(parser, sessions, riskSvc, limiter, builder, cached, guard, auditLog, cfg.Session.StoreTimeout, log)

	deps := httptransport.Deps{
		Pipeline:    chain,
		Admin:       httptransport.NewAdminHandler(entitlements, sessions, auditReader),
		API:         httptransport.NewAPIHandler(entitlements),
		RedisHealth: rdb.Health,
	}
	if pool != nil {
		deps.Postgres = pool
	}
	router := httptransport.NewRouter(deps)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting aegis", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// buildPolicyEngine selects the decision backend. The cleanup func releases
// backend resources (the embedded runtime holds a compiled module).
func buildPolicyEngine(ctx context.Context, cfg config.Policy) (policy.Engine, func(), error) {
	log := logger.New()
	if cfg.Backend == "wasm" && cfg.WASMModule != "" {
		bytecode, err := os.ReadFile(cfg.WASMModule)
		if err != nil {
			return nil, nil, err
		}
		eng, err := policy.NewWASM(ctx, bytecode, cfg.Timeout, log)
		if err != nil {
			return nil, nil, err
		}
		return eng, func() { _ = eng.Close(ctx) }, nil
	}
	return policy.NewRemote(cfg.RemoteURL, cfg.Timeout, log), func() {}, nil
}
