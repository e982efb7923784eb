package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"custodia/internal/changelog"
	"custodia/internal/changelog/outbox"
	changelogpg "custodia/internal/changelog/store/postgres"
	"custodia/internal/graph"
	"custodia/internal/graph/healthcache"
	"custodia/internal/hierarchy"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	platformmetrics "custodia/internal/platform/metrics"
	platformredis "custodia/internal/platform/redis"
	"custodia/internal/recipient"
	recipienthandler "custodia/internal/recipient/handler"
	recipientmetrics "custodia/internal/recipient/metrics"
	recipientservice "custodia/internal/recipient/service"
	recipientpg "custodia/internal/recipient/store/postgres"
	"custodia/internal/refdata"
	"custodia/internal/tenant"
	tenanthandler "custodia/internal/tenant/handler"
	httptransport "custodia/internal/transport/http"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/tx"
)

// main wires storage, services, and the HTTP server. With no DATABASE_URL the
// process runs fully in memory, which keeps local development and demos free
// of infrastructure.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db     *sql.DB
		runner tx.Runner

		nodeStore   recipient.Store
		changeStore changelog.Store
		tenantStore tenant.Store
		refStore    refdata.Store
		refSeeder   refdata.Seeder
		outboxStore outbox.Store
	)

	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}

		runner = &tx.SQLRunner{DB: db}
		nodeStore = recipientpg.New(db)
		changeStore = changelogpg.New(db)
		tenantStore = tenant.NewPostgresStore(db)
		pgRef := refdata.NewPostgresStore(db)
		refStore, refSeeder = pgRef, pgRef
		outboxStore = outbox.NewPostgresStore(db)
	} else {
		log.Info("no DATABASE_URL set, using in-memory stores")
		runner = &tx.MemoryRunner{}
		nodeStore = recipient.NewInMemoryStore()
		changeStore = changelog.NewInMemoryStore()
		tenantStore = tenant.NewInMemoryStore()
		memRef := refdata.NewInMemoryStore()
		refStore, refSeeder = memRef, memRef
	}

	if err := refdata.Seed(ctx, refSeeder); err != nil {
		log.Error("seed reference data", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	graphMetrics := graph.NewMetrics()
	engine := graph.New(nodeStore, log, graphMetrics)

	rules := hierarchy.DefaultRules()
	validator := hierarchy.NewService(rules, engine, log)

	changeMetrics := changelog.NewMetrics()
	interceptor := changelog.NewInterceptor(changeStore, log, changeMetrics)
	if err := interceptor.Register(recipient.ChangeDescriptor(refStore)); err != nil {
		log.Error("register change descriptor", "error", err)
		os.Exit(1)
	}

	var healthCache *healthcache.Cache
	if redisClient != nil {
		healthCache = healthcache.New(redisClient.Client, cfg.HealthCacheTTL,
			func(ctx context.Context, tenantID id.TenantID) (*graph.HealthReport, error) {
				return engine.CheckHierarchyHealth(ctx, tenantID, rules.HealthPolicy())
			}, log)
	}

	recipientSvc := recipientservice.New(nodeStore, runner, validator, engine,
		interceptor, changeStore, healthCache, log, recipientmetrics.New())
	tenantSvc := tenant.NewService(tenantStore, nodeStore, changeStore, runner, log)

	httpMetrics := platformmetrics.New()
	checks := map[string]httptransport.HealthChecker{}
	if redisClient != nil {
		checks["redis"] = redisClient
	}
	if db != nil {
		checks["postgres"] = dbHealth{db}
	}
	router := httptransport.NewRouter(checks,
		recipienthandler.New(recipientSvc, log, httpMetrics),
		tenanthandler.New(tenantSvc, log, httpMetrics),
	)

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting custodia", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 && outboxStore != nil {
		publisher, err := outbox.NewKafkaPublisher(ctx, cfg.Kafka)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		worker := outbox.NewWorker(outboxStore, publisher, cfg.Kafka.PollInterval, log, changeMetrics)
		group.Go(func() error {
			defer publisher.Close()
			return worker.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

type dbHealth struct{ db *sql.DB }

func (h dbHealth) Health(ctx context.Context) error { return h.db.PingContext(ctx) }
