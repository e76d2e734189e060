package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"gatepass/internal/access"
	"gatepass/internal/intake"
	ledgerService "gatepass/internal/ledger/service"
	ledgerStore "gatepass/internal/ledger/store"
	"gatepass/internal/notify"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/httpserver"
	"gatepass/internal/platform/kafka"
	"gatepass/internal/platform/logger"
	"gatepass/internal/platform/metrics"
	"gatepass/internal/platform/middleware"
	"gatepass/internal/platform/postgres"
	"gatepass/internal/platform/redis"
	"gatepass/internal/platform/sqlitepool"
	residentService "gatepass/internal/resident/service"
	residentStore "gatepass/internal/resident/store"
	sessionStore "gatepass/internal/session/store"
	httptransport "gatepass/internal/transport/http"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/circuit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gatepass:", err)
		os.Exit(1)
	}
}

// infra holds the connections opened at startup so they can be closed on
// shutdown.
type infra struct {
	db       *sql.DB
	sqlite   *sqlitepool.Pool
	redis    *redis.Client
	producer *kafka.Producer
}

func (i *infra) postgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if i.db != nil {
		return i.db, nil
	}
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres backend")
	}
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	i.db = db
	return db, nil
}

func (i *infra) close(ctx context.Context, log *slog.Logger) {
	if i.producer != nil {
		i.producer.Close(ctx)
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.sqlite != nil {
		_ = i.sqlite.Close()
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("postgres close failed", "error", err)
		}
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.Env)
	m := metrics.New(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var deps infra
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		deps.close(closeCtx, log)
	}()
	var checks []httptransport.HealthCheck

	residents, err := openResidents(ctx, cfg, &deps, log)
	if err != nil {
		return err
	}
	requests, err := openLedger(ctx, cfg, &deps)
	if err != nil {
		return err
	}
	if deps.db != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "postgres", Check: deps.db.PingContext})
	}

	ledger := ledgerService.New(requests, ledgerService.WithLogger(log), ledgerService.WithMetrics(m))
	ledger.RecoverLastID(ctx)

	deps.redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var sessions interface {
		intake.SessionStore
		sessionStore.Sweeper
	}
	if deps.redis != nil {
		sessions = sessionStore.NewRedis(deps.redis.Client, cfg.Intake.SessionIdleTTL)
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: deps.redis.Health})
		log.Info("sessions stored in redis")
	} else {
		sessions = sessionStore.NewInMemory(sessionStore.WithIdleTTL(cfg.Intake.SessionIdleTTL))
	}

	dispatcherOpts := []notify.Option{
		notify.WithLogger(log),
		notify.WithMetrics(m),
		notify.WithCorrelator(notify.NewCorrelator(cfg.Intake.CorrelationSecret)),
		notify.WithStatusRecorder(ledger),
		notify.WithIssuedIDs(ledger),
		notify.WithOperators(operatorIDs(cfg.Intake.SecurityOperators)...),
	}
	deps.producer, err = kafka.NewProducer(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	if deps.producer != nil {
		if err := deps.producer.EnsureTopic(ctx, 1, 1); err != nil {
			log.Warn("lifecycle topic not provisioned", "topic", cfg.Kafka.Topic, "error", err)
		}
		dispatcherOpts = append(dispatcherOpts, notify.WithPublisher(deps.producer))
		log.Info("lifecycle events enabled", "topic", cfg.Kafka.Topic)
	}

	var sender notify.Sender = notify.NewLogSender(log)
	if cfg.Relay.URL != "" {
		relay, err := notify.NewWebhookSender(cfg.Relay.URL, cfg.Relay.Timeout)
		if err != nil {
			return err
		}
		breaker := circuit.New("relay",
			circuit.WithFailureThreshold(cfg.Relay.FailureThreshold),
			circuit.WithCooldown(cfg.Relay.Cooldown),
		)
		sender = notify.NewGuardedSender(relay, breaker, log, m)
	}

	dispatcher := notify.NewDispatcher(sender, id.ChatID(cfg.Intake.SecurityChatID), dispatcherOpts...)
	identity := residentService.New(residents, residentService.WithLogger(log), residentService.WithMetrics(m))
	machine := intake.NewMachine(identity, ledger, dispatcher,
		intake.WithMachineLogger(log),
		intake.WithDirectory(cfg.Intake.SecurityPhones),
	)
	gate := access.FromConfig(cfg.Intake.AllowAll, cfg.Intake.AllowedRequesters)
	engine := intake.NewEngine(machine, sessions, gate, dispatcher,
		intake.WithLogger(log),
		intake.WithMetrics(m),
	)

	handler := httptransport.NewHandler(engine, log, checks...)
	var guards []func(http.Handler) http.Handler
	if cfg.Server.InboundToken != "" {
		guards = append(guards, middleware.RequireToken(cfg.Server.InboundToken, log))
	} else if cfg.Server.IsProduction() {
		log.Warn("INBOUND_TOKEN unset, /v1/events accepts unauthenticated events")
	}
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler, guards...))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gatepass listening", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sessionStore.RunJanitor(gctx, sessions, cfg.Intake.SweepInterval, log, m)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openResidents(ctx context.Context, cfg config.Config, deps *infra, log *slog.Logger) (residentService.Store, error) {
	switch cfg.Storage.ResidentBackend {
	case "memory":
		return residentStore.NewInMemory(), nil
	case "postgres":
		db, err := deps.postgres(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db, residentStore.PostgresSchema); err != nil {
			return nil, err
		}
		return residentStore.NewPostgres(db), nil
	default:
		pool, err := sqlitepool.Open(sqlitepool.Config{
			Path:      cfg.Storage.SQLitePath,
			PoolSize:  4,
			Logger:    log,
			OnConnect: residentStore.PrepareSQLite,
		})
		if err != nil {
			return nil, err
		}
		deps.sqlite = pool
		return residentStore.NewSQLite(pool), nil
	}
}

func openLedger(ctx context.Context, cfg config.Config, deps *infra) (ledgerService.Store, error) {
	if cfg.Storage.LedgerBackend != "postgres" {
		return ledgerStore.NewFile(cfg.Storage.LedgerPath), nil
	}
	db, err := deps.postgres(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db, ledgerStore.PostgresSchema); err != nil {
		return nil, err
	}
	return ledgerStore.NewPostgres(db), nil
}

func operatorIDs(raw []int64) []id.RequesterID {
	out := make([]id.RequesterID, 0, len(raw))
	for _, v := range raw {
		out = append(out, id.RequesterID(v))
	}
	return out
}
