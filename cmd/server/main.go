// The presence server coordinates event check-ins: it validates
// registrations against the events and registrations services, records
// attendance exactly once per registration and event, and reconciles batches
// captured offline.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presence/internal/checkin/audit"
	"presence/internal/checkin/handler"
	"presence/internal/checkin/metrics"
	"presence/internal/checkin/outbox"
	"presence/internal/checkin/roster"
	"presence/internal/checkin/service"
	attendancestore "presence/internal/checkin/store/attendance"
	auditstore "presence/internal/checkin/store/auditlog"
	"presence/internal/checkin/upstream"
	"presence/internal/checkin/validate"
	"presence/internal/platform/config"
	"presence/internal/platform/httpserver"
	"presence/internal/platform/logger"
	"presence/internal/platform/middleware"
	"presence/internal/platform/postgres"
	platformredis "presence/internal/platform/redis"
	"presence/internal/token"
)

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

	m := metrics.New()

	// Stores: postgres when configured, in-memory for local development.
	var (
		attendance service.AttendanceStore
		auditLog   audit.Store
	)
	var relay *outbox.Relay
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		attendance = attendancestore.NewPostgres(db)
		auditLog = auditstore.NewPostgres(db)

		if len(cfg.KafkaBrokers) > 0 {
			publisher, err := outbox.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic)
			if err != nil {
				return err
			}
			defer publisher.Close()
			relay = outbox.NewRelay(db, publisher, log, cfg.OutboxInterval, cfg.OutboxBatchSize)
		} else {
			log.Warn("KAFKA_BROKERS not set, audit outbox will accumulate")
		}
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		attendance = attendancestore.NewInMemory()
		auditLog = auditstore.NewInMemory()
	}

	var rosterCache roster.Cache
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		rosterCache = roster.NewRedisCache(redisClient.Client, cfg.RosterCacheTTL)
	} else {
		log.Warn("REDIS_URL not set, roster caching disabled")
	}

	events := upstream.NewEventsClient(cfg.EventsBaseURL, cfg.UpstreamTimeout, m)
	registrations := upstream.NewRegistrationsClient(cfg.RegistrationsBaseURL, cfg.UpstreamTimeout, m)

	recorder := audit.NewRecorder(auditLog, log, m.AuditDropped)
	validator := validate.New(events, registrations, cfg.UpstreamTimeout)
	checkins := service.New(attendance, recorder, validator, m, log)
	rosters := roster.New(events, registrations, attendance, rosterCache, log)

	tokens := token.NewValidator(token.NewService(cfg.JWTSigningKey, cfg.JWTIssuer))

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientMetadata)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens, log))
		handler.New(checkins, rosters, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	if relay != nil {
		go relay.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("presence server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
