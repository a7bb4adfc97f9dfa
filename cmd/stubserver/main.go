package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/config"
	"github.com/zhouzirui/roboadvisor/client/internal/handler"
	stubHandler "github.com/zhouzirui/roboadvisor/client/internal/handler/stub"
	"github.com/zhouzirui/roboadvisor/client/internal/logging"
	"github.com/zhouzirui/roboadvisor/client/internal/server"
	"github.com/zhouzirui/roboadvisor/client/internal/service/ai"
	stubService "github.com/zhouzirui/roboadvisor/client/internal/service/stub"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stubserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	// Initialize AI service
	var replier stubService.Replier = stubService.EchoReplier
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, logger.Named("ai"))
		if err != nil {
			logger.Warn("failed to initialize AI service, answering with echo replies", zap.Error(err))
		} else {
			replier = aiService
			logger.Info("AI service initialized", zap.String("model", cfg.AI.Model))
		}
	} else {
		logger.Info("Ark 凭证未配置，使用回显应答")
	}

	svc := stubService.NewService(stubService.Options{
		Replier:    replier,
		ReplyDelay: cfg.AI.ReplyDelay,
		Logger:     logger.Named("stub"),
	})
	defer svc.Close()

	router := handler.NewStubRouter(stubHandler.New(svc), logger.Named("http"))

	logger.Info("development backend starting",
		zap.String("addr", cfg.Stub.Addr),
		zap.Duration("reply_delay", cfg.AI.ReplyDelay),
	)
	return server.Run(ctx, server.New(cfg.Stub.Addr, router), logger)
}
