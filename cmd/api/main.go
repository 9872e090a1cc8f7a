package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/foyerhq/foyer/internal/app/migrate"
	"github.com/foyerhq/foyer/internal/domain"
	"github.com/foyerhq/foyer/internal/events"
	httpx "github.com/foyerhq/foyer/internal/http"
	"github.com/foyerhq/foyer/internal/repository/postgres"
	"github.com/foyerhq/foyer/internal/service/notify"
	"github.com/foyerhq/foyer/internal/service/registration"
	"github.com/foyerhq/foyer/internal/service/session"
	"github.com/foyerhq/foyer/internal/ws"
	"github.com/foyerhq/foyer/pkg/config"
	"github.com/foyerhq/foyer/pkg/crypto"
	"github.com/foyerhq/foyer/pkg/logger"
)

func main() {
	cfg := config.LoadAppConfig()
	log := logger.New("foyer", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	var sessionStore session.Store = session.NewMemoryStore()
	if addr := strings.TrimSpace(cfg.SessionRedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.SessionRedisPass,
			DB:       cfg.SessionRedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis session store unavailable, using memory store", "error", err)
			_ = client.Close()
		} else {
			defer client.Close()
			sessionStore = session.NewRedisStore(client)
		}
	}

	sessionSvc := session.New(sessionStore, session.Config{
		Secret:        cfg.JWTSecret,
		CookieName:    cfg.CookieName,
		ExpiryDays:    cfg.CookieExpiryDays,
		SecureCookies: cfg.SecureCookies,
	}, log)

	bus := events.NewBus(cfg.EventsBuffer, log)
	defer bus.Close()

	hub := ws.NewHub()
	bus.Subscribe(func(event domain.Event) {
		payload, err := json.Marshal(map[string]any{
			"kind":    event.Kind,
			"at":      event.At.UTC().Format(time.RFC3339Nano),
			"user_id": event.User.ID,
			"name":    event.User.Name,
			"email":   event.User.Email,
		})
		if err != nil {
			log.Error("marshal event for stream", "error", err)
			return
		}
		hub.Broadcast(event.Kind, payload)
	})

	hook := notify.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout, log)
	bus.Subscribe(func(event domain.Event) {
		hook.Notify(ctx, event)
	})

	registrationSvc := registration.New(
		repo,
		crypto.NewHasher(cfg.BcryptCost),
		sessionSvc,
		bus,
		registration.PolicyFromConfig(cfg),
		log,
	)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, registrationSvc, sessionSvc, repo, hub, limiter, cfg.EventsToken, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("foyer server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("foyer server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
