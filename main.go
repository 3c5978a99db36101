package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"eventhub/internal/auth"
	"eventhub/internal/cache"
	"eventhub/internal/config"
	"eventhub/internal/database/migrations"
	"eventhub/internal/event"
	eventdb "eventhub/internal/event/db"
	"eventhub/internal/event/event_api"
	"eventhub/internal/feedback"
	feedbackdb "eventhub/internal/feedback/db"
	"eventhub/internal/feedback/feedback_api"
	"eventhub/internal/kafka"
	"eventhub/internal/logger"
	"eventhub/internal/notifier"
	"eventhub/internal/user"
	userdb "eventhub/internal/user/db"
	"eventhub/internal/user/user_api"
	"eventhub/internal/utils"
	"eventhub/internal/views"
)

func connectDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL not ready: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

// buildNotifier wires the mail sink. With Kafka disabled or unreachable the
// service still runs; notifications degrade to log lines.
func buildNotifier(cfg *config.Config, log *logger.Logger) (notifier.Notifier, *kafka.Producer) {
	if !cfg.Kafka.Enabled {
		log.Warn("KAFKA", "Kafka disabled, notifications will be logged only")
		return notifier.NewLogNotifier(log), nil
	}

	topics := []string{cfg.Kafka.MailTopic, cfg.Kafka.ActivityTopic}
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	log.Info("KAFKA", "Kafka producer initialized successfully")
	return notifier.NewKafkaNotifier(producer, cfg.Kafka.MailTopic, log), producer
}

// startFeedbackSweep periodically issues feedback tokens for events that have
// ended since the last pass.
func startFeedbackSweep(ctx context.Context, svc *feedback.Service, interval time.Duration, log *logger.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processed, err := svc.SweepPastEvents(ctx)
				if err != nil {
					log.Error("FEEDBACK", fmt.Sprintf("Sweep failed: %v", err))
					continue
				}
				if processed > 0 {
					log.Info("FEEDBACK", fmt.Sprintf("Sweep issued tokens for %d past events", processed))
				}
			}
		}
	}()
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting EventHub service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("CONFIG", "JWT_SECRET not set")
	}

	bunDB := connectDatabase(cfg, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Schema migration failed: %v", err))
	}

	appCache := cache.New(cfg.Redis.Addr, log)

	mailNotifier, producer := buildNotifier(cfg, log)
	if producer != nil {
		defer producer.Close()
	}

	eventStore := &eventdb.DB{Bun: bunDB}
	feedbackStore := &feedbackdb.DB{Bun: bunDB}
	userStore := &userdb.DB{Bun: bunDB}

	var activity event.ActivityPublisher
	if producer != nil {
		activity = producer
	}

	eventService := event.NewService(eventStore, appCache, activity, cfg.Kafka.ActivityTopic, log, cfg.App.BaseURL)
	viewsService := views.NewService(eventStore, feedbackStore, userStore, appCache, log)
	feedbackService := feedback.NewService(feedbackStore, eventStore, mailNotifier, appCache, log, cfg.App.BaseURL)
	userService := user.NewService(userStore, mailNotifier, log, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	eventHandler := event_api.NewHandler(eventService, viewsService, log)
	feedbackHandler := feedback_api.NewHandler(feedbackService, log)
	userHandler := user_api.NewHandler(userService, viewsService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(utils.RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.App.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		// --- Public routes ---
		r.Post("/auth/request-otp", userHandler.RequestOtp)
		r.Post("/auth/verify-otp", userHandler.VerifyOtp)
		r.Post("/auth/login", userHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(cfg.Auth.JWTSecret))
			r.Get("/events", eventHandler.List)
			r.Get("/events/{eventId}", eventHandler.Detail)
		})

		// --- Protected routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(cfg.Auth.JWTSecret))

			r.Get("/me", userHandler.Me)

			r.Post("/events", eventHandler.Create)
			r.Delete("/events/{eventId}", eventHandler.Delete)
			r.Post("/events/{eventId}/join", eventHandler.Join)
			r.Delete("/events/{eventId}/leave", eventHandler.Leave)
			r.Get("/events/{eventId}/attendees", eventHandler.Attendees)

			r.Route("/feedback", func(r chi.Router) {
				r.Get("/{eventId}/validate-attendance", feedbackHandler.ValidateAttendance)
				r.Post("/{eventId}/generate-tokens", feedbackHandler.GenerateTokens)
				r.Post("/validate-token", feedbackHandler.ValidateToken)
				r.Post("/submit", feedbackHandler.Submit)
				r.Post("/submit-with-token", feedbackHandler.SubmitWithToken)
			})
		})
	})
	log.Info("ROUTER", "Routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	startFeedbackSweep(sweepCtx, feedbackService, cfg.App.FeedbackSweepInterval, log)
	log.Info("FEEDBACK", fmt.Sprintf("Feedback sweep running every %s", cfg.App.FeedbackSweepInterval))

	go func() {
		log.Info("HTTP", fmt.Sprintf("EventHub service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopSweep()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	}
	log.Info("APP", "Shutdown complete")
}
