package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentPay-Chain/internal/agent"
	"AgentPay-Chain/internal/api"
	"AgentPay-Chain/internal/command"
	"AgentPay-Chain/internal/config"
	"AgentPay-Chain/internal/schedule"
	"AgentPay-Chain/internal/storage/mysql"
	"AgentPay-Chain/internal/trading"
	"AgentPay-Chain/internal/wallet/provider"
	"AgentPay-Chain/pkg/logger"
)

// main 是 AgentPay 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentpayd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENTPAY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentpay.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	var paymentRepo mysql.PaymentRepository
	switch cfg.Storage.PaymentStore.Driver {
	case "memory", "":
		repo, err := mysql.NewMemoryPaymentRepository(dataDir)
		if err != nil {
			return err
		}
		paymentRepo = repo
	case "mysql":
		repo, err := mysql.NewSQLPaymentRepository(ctx, mysql.Config{
			DSN:             cfg.Storage.PaymentStore.DSN,
			MaxOpenConns:    cfg.Storage.PaymentStore.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.PaymentStore.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.PaymentStore.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.PaymentStore.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		paymentRepo = repo
	default:
		return mysql.ErrUnsupportedDriver
	}

	if closer, ok := paymentRepo.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Wallet)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	adapter, err := chainRegistry.DefaultAdapter()
	if err != nil {
		return err
	}

	identities := agent.NewIdentityRegistry()
	identity := identities.Obtain(cfg.Wallet.Role, cfg.Wallet.Address, chainRegistry.DefaultNetwork(), "payment", "trading")

	policy := agent.NewPolicy()
	if cfg.Policy.MaxAutoApprove > 0 {
		policy.MaxAutoApprove = cfg.Policy.MaxAutoApprove
	}
	policy.DailyBudget = cfg.Policy.DailyBudget
	policy.AllowedResources = cfg.Policy.AllowedResources

	fetcher := agent.NewHTTPFetcher(cfg.Resource.BaseURL, cfg.Resource.Timeout())
	payAgent := agent.New(identity, fetcher, adapter,
		agent.WithPolicy(policy),
		agent.WithHistory(paymentRepo),
	)

	quotes := trading.NewHTTPQuoteProvider(cfg.Resource.BaseURL, cfg.Resource.Timeout())
	trader := trading.NewTrader(payAgent, quotes,
		trading.WithStrategy(trading.Strategy(cfg.Trading.Strategy)),
		trading.WithPriceSource(quotes),
	)

	var scheduleQueue schedule.Queue
	switch cfg.ScheduleQueue.Driver {
	case "", "memory":
		scheduleQueue = schedule.NewMemoryQueue(1024)
	case "redis":
		queue, err := schedule.NewRedisQueue(schedule.RedisQueueConfig{
			Address:   cfg.ScheduleQueue.Redis.Address,
			Password:  cfg.ScheduleQueue.Redis.Password,
			DB:        cfg.ScheduleQueue.Redis.DB,
			Queue:     cfg.ScheduleQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.ScheduleQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		scheduleQueue = queue
	case "rabbitmq":
		queue, err := schedule.NewRabbitMQQueue(schedule.RabbitMQConfig{
			URL:        cfg.ScheduleQueue.RabbitMQ.URL,
			Queue:      cfg.ScheduleQueue.RabbitMQ.Queue,
			Prefetch:   cfg.ScheduleQueue.RabbitMQ.Prefetch,
			Durable:    cfg.ScheduleQueue.RabbitMQ.Durable,
			AutoDelete: cfg.ScheduleQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		scheduleQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.ScheduleQueue.Driver)
	}
	defer func() {
		if scheduleQueue != nil {
			if err := scheduleQueue.Close(); err != nil {
				log.Printf("关闭计划支付队列失败: %v", err)
			}
		}
	}()

	evaluator := schedule.NewConditionEvaluator(
		schedule.WithPriceChecker(quotes),
		schedule.WithBalanceChecker(adapter),
	)

	manager := schedule.NewManager(schedule.NewMemoryStore(), scheduleQueue, payAgent,
		schedule.WithWorkerCount(cfg.ScheduleQueue.Worker),
		schedule.WithMaxAttempts(cfg.ScheduleQueue.MaxAttempts),
		schedule.WithConditionEvaluator(evaluator),
	)
	defer func() {
		_ = manager.Close()
	}()

	managerCtx, managerCancel := context.WithCancel(ctx)
	defer managerCancel()

	go func() {
		if err := manager.Start(managerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("计划支付调度器异常退出: %v", err)
		}
	}()

	dispatcher := command.NewDispatcher(command.NewRuleInterpreter(), payAgent, trader, manager)

	server := api.NewServer(cfg.Server.Address, payAgent, trader, manager, dispatcher)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
