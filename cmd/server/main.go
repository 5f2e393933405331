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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/entitlement/internal/config"
	"github.com/Skotchmaster/entitlement/internal/db"
	"github.com/Skotchmaster/entitlement/internal/events"
	"github.com/Skotchmaster/entitlement/internal/logging"
	loggingmw "github.com/Skotchmaster/entitlement/internal/middleware/logging"
	"github.com/Skotchmaster/entitlement/internal/repo"
	"github.com/Skotchmaster/entitlement/internal/service"
	"github.com/Skotchmaster/entitlement/internal/session"
	"github.com/Skotchmaster/entitlement/internal/tokens"
	httpserver "github.com/Skotchmaster/entitlement/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DSN())
	cancel()
	if err != nil {
		log.Error("db_init_error", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}

	store := repo.New(gdb)

	var sessions session.Store = session.NewMemoryStore()
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Error("redis_init_error", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		sessions = session.NewRedisStore(rdb)
	}

	var pub events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Info("events_enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	svc := service.New(store, tokens.NewIssuer(cfg.JWTSecret), pub)

	if cfg.BootstrapSuperAdmin != "" {
		ctx := logging.IntoContext(context.Background(), log)
		if _, err := svc.BootstrapSuperAdmin(ctx, cfg.BootstrapSuperAdmin); err != nil {
			log.Warn("bootstrap_superadmin_skipped", "username", cfg.BootstrapSuperAdmin, "error", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), loggingmw.RequestLogger(log))

	httpserver.Register(e, &httpserver.Deps{
		Handler: &httpserver.EntitlementHTTP{
			Svc:      svc,
			Sessions: sessions,
			Cookie:   cfg.SessionCookie,
		},
		Ready: store.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.Info("http_listen", "addr", cfg.HTTPAddr, "driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server_shutdown_error", "error", err)
	}
	if err := pub.Close(); err != nil {
		log.Error("kafka_close_error", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error("redis_close_error", "error", err)
		}
	}
	if err := db.Close(gdb); err != nil {
		log.Error("db_close_error", "error", err)
	}

	log.Info("shutdown_complete")
}
