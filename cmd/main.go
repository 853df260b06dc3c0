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

	"modchat/backend/internal/api/handler"
	"modchat/backend/internal/chathub"
	"modchat/backend/internal/config"
	"modchat/backend/internal/models"
	"modchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func setupDependencies(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	var db *gorm.DB
	if cfg.Postgres.Enabled {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		err = db.AutoMigrate(
			&models.ChatRoom{},
			&models.Plan{},
			&models.User{},
			&models.ProfileSeed{},
		)
		if err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	slog.Info("storage.ready", "postgres", db != nil, "redis", rdb != nil)
	return db, rdb, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config.load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(config.NewLogger(os.Stdout, cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server.exit", "error", err)
		os.Exit(1)
	}
	slog.Info("server.stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, rdb, err := setupDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	store := storage.NewStorageService(db, rdb)

	var gate *chathub.Gate
	if db != nil || rdb != nil {
		gate = chathub.NewGate(store, cfg.Gate.CacheSize, cfg.Gate.CacheTTL, cfg.Gate.Timeout)
	}
	auditor := chathub.NewRoomAuditor(store, gate, nil)

	opts := chathub.Options{
		MinSearchDelay:   cfg.Match.MinDelay,
		MaxSearchDelay:   cfg.Match.MaxDelay,
		StrictInvariants: cfg.Match.StrictInvariants,
		Observers:        []chathub.PairingObserver{auditor},
	}
	if db != nil {
		opts.Profiles = store
		if _, err := auditor.RecoverActiveRooms(ctx); err != nil {
			slog.Warn("audit.recover_failed", "error", err)
		}
	}
	hub := chathub.NewManagerService(opts)

	var tokens *handler.TokenValidator
	if cfg.Auth.Enabled {
		tokens = handler.NewTokenValidator(cfg.Auth)
	} else {
		slog.Warn("security.auth_disabled", "hint", "clients identify themselves; do not expose this server")
	}

	gin.SetMode(gin.ReleaseMode)
	h := handler.NewHandler(hub, gate, tokens, cfg)
	server := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        handler.NewRouter(h, cfg),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	// The auditor outlives the hub so the rooms closed during hub shutdown
	// are still written.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	defer stopAudit()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return auditor.Run(auditCtx) })
	g.Go(func() error {
		<-hub.Done()
		stopAudit()
		return nil
	})
	g.Go(func() error {
		slog.Info("server.listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})
	return g.Wait()
}
