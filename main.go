package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/config"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/dispatch"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/handlers"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/prayer"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/scheduler"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/snooze"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/store"
)

func main() {
	cfg := config.MustLoad()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// VAPID keys: from config, or generated for development.
	vapidPublic, vapidPrivate := cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey
	if vapidPublic == "" || vapidPrivate == "" {
		logger.Warn("VAPID keys not configured, generating ephemeral keys")
		vapidPrivate, vapidPublic, err = webpush.GenerateVAPIDKeys()
		if err != nil {
			logger.Fatal("failed to generate VAPID keys", zap.Error(err))
		}
		logger.Info("generated VAPID keys, add them to .env to persist",
			zap.String("VAPID_PUBLIC_KEY", vapidPublic))
	}

	// Subscription store: Postgres when configured, memory otherwise.
	var subs store.SubscriptionStore
	if cfg.Database.URL != "" {
		pgStore, err := store.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		if err := pgStore.RunMigrations(ctx); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations completed")
		subs = pgStore
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory subscription store")
		subs = store.NewMemoryStore()
	}

	// Redis: prayer-times cache and the client event stream.
	redisStore := store.NewRedisStore(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	times := prayer.NewService(redisStore, logger)

	transport := &dispatch.WebPushTransport{
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             cfg.Push.TTL,
	}
	dispatcher := dispatch.New(transport, subs, logger)

	sched := scheduler.New(subs, times, dispatcher, redisStore, cfg.Scheduler.ResyncSpec, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	snoozer := snooze.NewManager(subs, dispatcher, logger)
	defer snoozer.Stop()

	h := handlers.NewHandler(subs, times, dispatcher, snoozer, redisStore, vapidPublic, cfg.Session.Secret, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/public-key", h.PublicKeyHandler)
		r.Post("/subscribe", h.SubscribeHandler)
		r.Post("/unsubscribe", h.UnsubscribeHandler)
		r.Post("/test", h.TestHandler)
		r.Post("/test-prayer", h.TestPrayerHandler)
		r.Post("/snooze", h.SnoozeHandler)
		r.Get("/status", h.StatusHandler)
		r.Get("/events", h.EventsHandler)
	})
	r.Get("/healthz", h.HealthzHandler)
	r.Handle("/metrics", promhttp.Handler())

	// Serve static files (PWA assets, service worker, adhan audio)
	fs := http.FileServer(http.Dir("web/static"))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))

	srv := &http.Server{Addr: cfg.HTTPServer.Address, Handler: r}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	srv.Shutdown(ctx)
}
