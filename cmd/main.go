// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/openclub/event-registration/internal/config"
	"github.com/openclub/event-registration/internal/database"
	"github.com/openclub/event-registration/internal/handler"
	"github.com/openclub/event-registration/internal/notification"
	"github.com/openclub/event-registration/internal/repository"
	"github.com/openclub/event-registration/internal/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log := logrus.StandardLogger()
	if cfg.Server.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	// ── 1. Connect to PostgreSQL and run migrations ──────────────────────
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Info("connected to PostgreSQL")

	// ── 2. Notification pipeline ─────────────────────────────────────────
	var notifier notification.Notifier
	if cfg.Email.Enabled {
		smtp, err := notification.NewSMTP(cfg.Email)
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
		notifier = smtp
	} else {
		notifier = notification.NewConsole(log)
	}

	var dispatcher notification.Dispatcher
	var queue *notification.Queue
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		queue, err = notification.NewQueue(client, notifier, notification.DefaultQueueConfig(), log)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		queue.Start(ctx)
		dispatcher = queue
		log.Info("connected to Redis, queued notification delivery enabled")
	} else {
		dispatcher = notification.NewDirectDispatcher(notifier, log)
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	regRepo := repository.NewRegistrationRepository(pool, cfg.Registration.AutoCreateEvents)
	regSvc := service.NewRegistrationService(regRepo, dispatcher, log, cfg.Registration.MaxAttempts)
	eventSvc := service.NewEventService(eventRepo, regRepo)
	api := handler.NewAPI(regSvc, eventSvc)

	// ── 4. Build the router ──────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger)
	r.Use(handler.SecurityHeaders)
	r.Use(handler.CORS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.HealthCheck)
		r.Post("/register", api.Register)
		r.Route("/events", func(r chi.Router) {
			r.Post("/", api.CreateEvent)
			r.Get("/", api.ListEvents)
			r.Get("/{id}", api.GetEvent)
			r.Get("/{id}/registrations", api.ListRegistrations)
		})
	})
	r.NotFound(handler.NotFound)

	// ── 5. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("server listening on http://localhost:%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}

	// Stop the queue worker after the server has drained.
	cancel()
	if queue != nil {
		queue.Wait()
	}
	log.Info("server stopped")
}
