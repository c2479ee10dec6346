// Command server runs the race registration API: runner submissions, staff
// payment review, and the race-day kit pickup desk.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"racereg/internal/audit"
	"racereg/internal/checkin"
	checkinhandler "racereg/internal/checkin/handler"
	"racereg/internal/events"
	"racereg/internal/jwtauth"
	"racereg/internal/notify"
	"racereg/internal/objectstore"
	"racereg/internal/platform/config"
	"racereg/internal/platform/httpserver"
	"racereg/internal/platform/logger"
	"racereg/internal/platform/middleware"
	platformredis "racereg/internal/platform/redis"
	reghandler "racereg/internal/registration/handler"
	"racereg/internal/registration/metrics"
	"racereg/internal/registration/service"
	"racereg/internal/registration/store"
)

func main() {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

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

	// Stores. Postgres when configured, in-memory for local development.
	var (
		regStore   store.Store
		auditStore audit.Store
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		regStore = store.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		log.Info("using postgres store")
	} else {
		regStore = store.NewInMemory()
		auditStore = audit.NewInMemoryStore()
		log.Warn("no postgres configured, registrations are not persisted")
	}

	// Slip storage on local disk; the handler serves the files back.
	slips, err := objectstore.NewDisk(cfg.SlipDir, cfg.SlipBaseURL)
	if err != nil {
		return fmt.Errorf("open slip storage: %w", err)
	}

	// Redis backs the race-day pickup tally. Optional.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditor := audit.NewPublisher(auditStore,
		audit.WithLogger(log),
		audit.WithAsyncBuffer(256),
	)
	defer auditor.Close()

	// Event stream: Kafka when brokers are configured, otherwise an
	// in-process feed drained by the notification worker.
	var (
		publisher events.Publisher
		memFeed   *events.MemoryPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kp.Close()
		if err := kp.EnsureTopic(ctx); err != nil {
			return fmt.Errorf("ensure event topic: %w", err)
		}
		publisher = kp
		log.Info("publishing lifecycle events to kafka", "topic", cfg.Kafka.Topic)
	} else {
		memFeed = events.NewMemoryPublisher(256)
		publisher = memFeed
		log.Warn("no kafka brokers configured, events stay in-process")
	}

	m := metrics.New()
	regService := service.New(regStore, slips,
		service.WithLogger(log),
		service.WithPublisher(publisher),
		service.WithAuditor(auditor),
		service.WithMetrics(m),
		service.WithMaxSlipBytes(cfg.MaxSlipBytes),
	)
	checkinService := checkin.New(regStore,
		checkin.WithLogger(log),
		checkin.WithTally(checkin.NewTally(redisClient, log)),
		checkin.WithPublisher(publisher),
		checkin.WithAuditor(auditor),
	)

	validator := jwtauth.NewValidator(cfg.JWTSigningKey)
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(chimiddleware.Timeout(30 * time.Second))

	reghandler.New(regService, log, validator).Register(router)
	checkinhandler.New(checkinService, log, validator).Register(router)
	router.Get("/healthz", healthz(redisClient))
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/slips/*", http.StripPrefix("/slips/", http.FileServer(http.Dir(cfg.SlipDir))))

	srv := httpserver.New(cfg.Addr, router)
	worker := notify.NewWorker(&notify.LogMailer{Logger: log}, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting racereg server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
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
		if len(cfg.Kafka.Brokers) > 0 {
			consumer, err := events.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, "racereg-notify", log)
			if err != nil {
				return fmt.Errorf("connect kafka consumer: %w", err)
			}
			return ignoreCancel(consumer.Run(ctx, worker.Handle))
		}
		return ignoreCancel(worker.RunFeed(ctx, memFeed.Feed()))
	})

	return ignoreCancel(g.Wait())
}

func healthz(redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
