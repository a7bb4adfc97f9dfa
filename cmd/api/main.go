package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/config"
	"github.com/zhouzirui/roboadvisor/client/internal/handler"
	chatHandler "github.com/zhouzirui/roboadvisor/client/internal/handler/chat"
	identityHandler "github.com/zhouzirui/roboadvisor/client/internal/handler/identity"
	"github.com/zhouzirui/roboadvisor/client/internal/identity"
	"github.com/zhouzirui/roboadvisor/client/internal/logging"
	"github.com/zhouzirui/roboadvisor/client/internal/server"
	chatService "github.com/zhouzirui/roboadvisor/client/internal/service/chat"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug("no .env file, using system environment only", zap.Error(envErr))
	}

	store, closeStore := openIdentityStore(cfg.Identity.DBPath, logger)
	defer closeStore()

	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, backend.WithLogger(logger.Named("backend")))
	provider := identity.NewProvider(store, client)

	view := chatService.NewController(client, chatService.ControllerOptions{
		Poll: chatService.PollPolicy{
			MaxAttempts: cfg.Chat.PollMaxAttempts,
			Interval:    cfg.Chat.PollInterval,
		},
		Logger: logger.Named("view"),
	})

	chat := chatHandler.New(ctx, chatHandler.Options{
		Users:     provider,
		Loader:    chatService.NewMessageLoader(client),
		Directory: chatService.NewDirectory(client, cfg.Chat.DirectoryConcurrency, logger.Named("directory")),
		View:      view,
		Logger:    logger.Named("chat"),
	})
	defer chat.Wait()

	router := handler.NewRouter(identityHandler.New(provider, logger.Named("identity")), chat, logger.Named("http"))

	logger.Info("robo-advisor chat gateway starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Int("poll_attempts", cfg.Chat.PollMaxAttempts),
		zap.Duration("poll_interval", cfg.Chat.PollInterval),
	)
	return server.Run(ctx, server.New(cfg.Server.Addr, router), logger)
}

// openIdentityStore 优先使用 SQLite，失败时退回内存存储（重启后会重新申请用户 ID）
func openIdentityStore(path string, logger *zap.Logger) (identity.Store, func()) {
	store, err := identity.NewSQLiteStore(path)
	if err != nil {
		logger.Warn("identity database unavailable, identity will not survive restarts",
			zap.String("path", path), zap.Error(err))
		return identity.NewMemoryStore(), func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close identity database", zap.Error(err))
		}
	}
}
