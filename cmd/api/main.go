package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/baharkarakas/card-ledger/internal/api"
	"github.com/baharkarakas/card-ledger/internal/audit"
	"github.com/baharkarakas/card-ledger/internal/config"
	"github.com/baharkarakas/card-ledger/internal/db"
	"github.com/baharkarakas/card-ledger/internal/lock"
	"github.com/baharkarakas/card-ledger/internal/logger"
	"github.com/baharkarakas/card-ledger/internal/metrics"
	"github.com/baharkarakas/card-ledger/internal/repository"
	"github.com/baharkarakas/card-ledger/internal/repository/memory"
	"github.com/baharkarakas/card-ledger/internal/repository/postgres"
	"github.com/baharkarakas/card-ledger/internal/services"
	"github.com/baharkarakas/card-ledger/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("exit", "err", err)
		os.Exit(1)
	}
}

type stores struct {
	users  repository.Users
	ledger repository.Ledger
	audit  repository.AuditLogs
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// ---------- store ----------
	var st stores
	switch cfg.StoreBackend {
	case config.StoreMemory:
		m := memory.New()
		st = stores{users: m.Users(), ledger: m, audit: m.AuditLogs()}
		log.Warn("using in-memory store, data is lost on exit")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		closers = append(closers, pool.Close)
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool, log); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
		}
		repos := postgres.NewRepositories(pool, cfg.LockTimeout)
		st = stores{users: repos.Users, ledger: repos.Ledger, audit: repos.AuditLogs}
	}

	// ---------- card locks ----------
	var locks lock.Manager
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		closers = append(closers, func() { _ = rdb.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		locks = lock.NewRedis(rdb, lock.RedisOptions{
			Timeout:    cfg.LockTimeout,
			Expiry:     cfg.LockExpiry,
			RetryDelay: cfg.LockRetry,
		})
	default:
		locks = lock.NewLocal(cfg.LockTimeout)
	}
	locks = lock.Instrument(locks, cfg.LockBackend)

	// ---------- audit ----------
	wp := worker.NewPool(cfg.AuditWorkers, cfg.AuditQueueSize, log)

	var sinks []audit.Sink
	if cfg.HasSink("log") {
		sinks = append(sinks, audit.NewLogSink(log))
	}
	if cfg.HasSink("db") {
		sinks = append(sinks, audit.NewRepoSink(st.audit))
	}
	if cfg.HasSink("amqp") {
		sink, closeFn, err := audit.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = closeFn() })
		sinks = append(sinks, sink)
	}
	dispatcher := audit.NewDispatcher(wp, log, sinks...)
	// drain queued events before sinks close
	closers = append(closers, wp.Stop)

	// ---------- services & http ----------
	userSvc := services.NewUserService(st.users, st.ledger)
	cardSvc := services.NewCardService(st.ledger, locks, dispatcher, log)
	txnSvc := services.NewTransactionService(st.ledger, locks, dispatcher, log)

	metrics.Init()
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterDeps{
			Cfg:     cfg,
			Log:     log,
			UserSvc: userSvc,
			CardSvc: cardSvc,
			TxnSvc:  txnSvc,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting",
			"port", cfg.HTTPPort,
			"store", cfg.StoreBackend,
			"lock", cfg.LockBackend,
			"audit_sinks", cfg.AuditSinks,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
