package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"enrollsync/internal/audit"
	"enrollsync/internal/entitlement"
	entpostgres "enrollsync/internal/entitlement/store/postgres"
	"enrollsync/internal/identity"
	"enrollsync/internal/notify"
	"enrollsync/internal/notify/email"
	notifypostgres "enrollsync/internal/notify/store/postgres"
	"enrollsync/internal/platform/config"
	"enrollsync/internal/platform/httpserver"
	"enrollsync/internal/platform/logger"
	"enrollsync/internal/platform/metrics"
	"enrollsync/internal/platform/redis"
	"enrollsync/internal/provision"
	provpostgres "enrollsync/internal/provision/store/postgres"
	"enrollsync/internal/reconcile"
	regpostgres "enrollsync/internal/registration/store/postgres"
	httptransport "enrollsync/internal/transport/http"
)

// main wires the dependency graph and runs three long-lived workers under
// one lifecycle: the HTTP trigger surface, the scheduled sweep, and the
// notification outbox drainer. Business logic lives in internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sourceDB, err := openDB(ctx, cfg.SourceDB.DSN)
	if err != nil {
		return errors.Join(errors.New("source database"), err)
	}
	defer sourceDB.Close()

	targetDB, err := openDB(ctx, cfg.TargetDB.DSN)
	if err != nil {
		return errors.Join(errors.New("target database"), err)
	}
	defer targetDB.Close()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var trail audit.Publisher = audit.NewNopPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaTrail, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return errors.Join(errors.New("kafka audit publisher"), err)
		}
		trail = kafkaTrail
	}
	defer trail.Close()

	m := metrics.New()

	resetLinks := identity.NewResetLinkBuilder(
		cfg.Pipeline.ResetLinkSecret, cfg.Pipeline.ResetLinkTTL, cfg.Email.FrontendBaseURL)
	idp := identity.NewPostgresProvider(targetDB, resetLinks)

	sourceStore := regpostgres.New(sourceDB)
	targetStore := regpostgres.New(targetDB)
	directory := provpostgres.New(targetDB)
	entStore := entpostgres.New(targetDB)
	outbox := notifypostgres.New(targetDB)

	var sender notify.Sender
	if cfg.Email.SendgridKey != "" {
		sender = email.NewSendgridSender(cfg.Email.SendgridKey, cfg.Email.FromName, cfg.Email.FromAddress)
	} else {
		log.Warn("no sendgrid key configured, using console email sender")
		sender = email.NewConsoleSender(log)
	}

	notifier, err := notify.New(outbox, sender, idp, cfg.Pipeline.OutboxMaxAttempt,
		notify.WithLogger(log), notify.WithMetrics(m))
	if err != nil {
		return err
	}

	grantor, err := entitlement.New(entStore, cfg.Pipeline.TrialWindow,
		entitlement.WithLogger(log))
	if err != nil {
		return err
	}

	provOpts := []provision.Option{
		provision.WithLogger(log),
		provision.WithMetrics(m),
		provision.WithTimeout(cfg.Pipeline.ProvisionTimeout),
		provision.WithTxRunner(newDirectoryPostgresTx(targetDB)),
	}
	if redisClient != nil {
		provOpts = append(provOpts, provision.WithLocker(redisClient, cfg.Pipeline.LockTTL))
	}
	provisioner, err := provision.New(directory, idp, provOpts...)
	if err != nil {
		return err
	}

	reconciler, err := reconcile.New(sourceStore, targetStore, provisioner, grantor, notifier,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(m),
		reconcile.WithAuditTrail(trail))
	if err != nil {
		return err
	}

	handler := httptransport.NewHandler(reconciler, log)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Handler:        handler,
		WebhookSecret:  cfg.Server.WebhookSecret,
		RequestTimeout: cfg.Pipeline.SweepTimeout,
		Health:         healthCheck(sourceDB, targetDB, redisClient),
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	scheduler := reconcile.NewScheduler(reconciler, cfg.Pipeline.SweepInterval, cfg.Pipeline.SweepTimeout, log)
	outboxWorker := notify.NewWorker(notifier, cfg.Pipeline.OutboxInterval)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting enrollsync", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ignoreCancel(scheduler.Run(ctx))
	})
	g.Go(func() error {
		return ignoreCancel(outboxWorker.Run(ctx))
	})

	err = g.Wait()
	log.Info("enrollsync stopped")
	return err
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func healthCheck(sourceDB, targetDB *sql.DB, redisClient *redis.Client) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := sourceDB.PingContext(ctx); err != nil {
			return errors.Join(errors.New("source database unreachable"), err)
		}
		if err := targetDB.PingContext(ctx); err != nil {
			return errors.Join(errors.New("target database unreachable"), err)
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				return errors.Join(errors.New("redis unreachable"), err)
			}
		}
		return nil
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
