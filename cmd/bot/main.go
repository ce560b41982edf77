package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/approval"
	"github.com/xela07ax/slack-approval-bot/internal/bot"
	"github.com/xela07ax/slack-approval-bot/internal/commands"
	"github.com/xela07ax/slack-approval-bot/internal/connectors"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"github.com/xela07ax/slack-approval-bot/internal/infra"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст жизненного цикла: SIGINT/SIGTERM останавливают транспорт
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Slack API: рендеринг + лимит исходящих вызовов
	opts := []slack.Option{slack.OptionDebug(cfg.Slack.Debug)}
	if cfg.Slack.SocketMode {
		opts = append(opts, slack.OptionAppLevelToken(cfg.Slack.AppToken))
	}
	api := slack.New(cfg.Slack.BotToken, opts...)
	messenger := engine.NewThrottledMessenger(
		connectors.NewSlackMessenger(api, logger),
		cfg.Slack.RatePerSecond,
		cfg.Slack.Burst,
	)

	// 4. Защита от повторного решения
	claims, closeClaims, err := newClaimStore(appCtx, cfg)
	if err != nil {
		logger.Fatal("failed to init claim store", zap.Error(err))
	}
	defer closeClaims()

	// 5. Внешний API цитат: Rate Limiter -> Circuit Breaker -> Retries
	quotes := engine.NewReliabilityWrapper(
		connectors.NewQuoteClient(cfg.Quote.URL, &http.Client{Timeout: cfg.Quote.Timeout}),
		engine.ReliabilitySettings{
			Name:       "quote",
			Attempts:   cfg.Quote.Attempts,
			Timeout:    cfg.Quote.Timeout,
			RatePerSec: 1,
			Burst:      3,
		},
		metrics,
		logger,
	)

	// 6. Core: workflow согласования и простые команды
	coordinator := approval.NewCoordinator(messenger, claims, metrics, logger)
	cmdHandler := commands.NewHandler(messenger, quotes, metrics, logger)

	b := bot.New(metrics, logger)
	b.Command(cfg.Approval.Command, coordinator.StartRequest)
	b.View(domain.RequestModalCallbackID, func(ctx context.Context, evt domain.SubmissionEvent) error {
		_, err := coordinator.Dispatch(ctx, evt)
		return err
	})
	b.Action(domain.ApprovalActionsBlockID, domain.DecisionActionIDs(), func(ctx context.Context, evt domain.InteractionEvent) error {
		_, err := coordinator.Resolve(ctx, evt)
		return err
	})
	for _, name := range cmdHandler.Names() {
		b.Command(name, cmdHandler.Handle)
	}

	// 7. HTTP: health, metrics и (в HTTP-режиме) события Slack
	serverOpts := bot.ServerOptions{Gatherer: reg}
	if !cfg.Slack.SocketMode {
		serverOpts.SigningSecret = cfg.Slack.SigningSecret
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      bot.NewServer(b, serverOpts, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server started", zap.String("addr", srv.Addr), zap.Bool("socket_mode", cfg.Slack.SocketMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 8. Socket Mode: соединение держится до остановки процесса
	if cfg.Slack.SocketMode {
		transport := bot.NewSocketTransport(api, b, cfg.Slack.Debug, logger)
		go func() {
			if err := transport.Run(appCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("socket mode stopped", zap.Error(err))
				stop()
			}
		}()
	}

	logger.Info("approval bot is running", zap.String("command", cfg.Approval.Command))
	<-appCtx.Done()

	// 9. Graceful Shutdown
	logger.Info("approval bot stopping...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("approval bot exited properly")
}

// newClaimStore выбирает хранилище по approval.claim_store.
func newClaimStore(ctx context.Context, cfg *infra.Config) (approval.ClaimStore, func(), error) {
	switch cfg.Approval.ClaimStore {
	case infra.ClaimStoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return approval.NewRedisClaims(rdb, cfg.Approval.ClaimTTL), func() { _ = rdb.Close() }, nil
	case infra.ClaimStoreMemory:
		return approval.NewMemoryClaims(cfg.Approval.ClaimTTL), func() {}, nil
	default:
		return approval.NoopClaims{}, func() {}, nil
	}
}
