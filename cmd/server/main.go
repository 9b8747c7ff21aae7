package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/meal-planner/internal/auth"
	"example.com/meal-planner/internal/config"
	"example.com/meal-planner/internal/database"
	"example.com/meal-planner/internal/notifications"
	"example.com/meal-planner/internal/repository"
	"example.com/meal-planner/internal/server"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a bearer token for the given user id and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -issue-token")
	flag.Parse()

	ensureEnvFile()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *issueToken != "" {
		token, _, err := auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer).IssueToken(*issueToken, *tokenTTL)
		if err != nil {
			logger.Error("failed to issue token", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	documents, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	hub := notifications.NewHub()
	var publisher notifications.Publisher = hub

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.Realtime.RedisURL != "" {
		broker, err := notifications.NewRedisBroker(ctx, cfg.Realtime.RedisURL, cfg.Realtime.RedisChannel, hub, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			_ = broker.Close()
		}()

		publisher = broker
		group.Go(func() error {
			return broker.Run(groupCtx)
		})
		logger.Info("realtime fan-out via redis", slog.String("channel", cfg.Realtime.RedisChannel))
	}

	e := server.New(cfg, logger, documents, hub, publisher)
	httpServer := server.NewHTTPServer(cfg.Server, e)

	group.Go(func() error {
		logger.Info("http server started", slog.String("addr", httpServer.Addr), slog.String("storage", cfg.Storage.Driver))
		if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	return group.Wait()
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.DocumentRepository, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		return repository.NewPostgresDocumentRepository(db), db.Close, nil
	default:
		repo, err := repository.NewFileDocumentRepository(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open data dir: %w", err)
		}
		return repo, func() {}, nil
	}
}

func ensureEnvFile() {
	if os.Getenv("ENV_FILE") != "" {
		return
	}

	if _, err := os.Stat(".env"); err == nil {
		_ = os.Setenv("ENV_FILE", ".env")
		return
	}

	if _, err := os.Stat("../.env"); err == nil {
		_ = os.Setenv("ENV_FILE", "../.env")
	}
}
