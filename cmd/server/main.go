package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ticket-transaction-engine/config"
	"ticket-transaction-engine/internal/cache"
	"ticket-transaction-engine/internal/database"
	"ticket-transaction-engine/internal/handler"
	"ticket-transaction-engine/internal/notification"
	"ticket-transaction-engine/internal/repository/postgres"
	"ticket-transaction-engine/internal/service"
	"ticket-transaction-engine/internal/tracing"
	"ticket-transaction-engine/internal/worker"
	"ticket-transaction-engine/pkg/clock"
	"ticket-transaction-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	log := logger.L
	defer logger.Sync()
	if err := logger.SetLevel(cfg.Server.LogLevel); err != nil {
		log.Warn("invalid LOG_LEVEL, keep info", zap.String("level", cfg.Server.LogLevel))
	}

	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Server.Environment,
	}); err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	pool, err := database.InitDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("Failed to ensure schema", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	defer rdb.Close()

	queue, closeQueue, err := newNotificationQueue(ctx, cfg.Notification, rdb)
	if err != nil {
		log.Fatal("Failed to initialize notification queue", zap.Error(err))
	}
	defer closeQueue()

	// 組裝 engine
	clk := clock.New()
	store := postgres.NewStore(pool)
	notifier := notification.NewQueueNotifier(queue, clk)
	inventory := service.NewInventoryManager()
	ledger := service.NewPointsLedger(store, clk, cfg.Engine.RestoredPointsTTL)
	coordinator := service.NewRollbackCoordinator(store, inventory, ledger, notifier, clk)
	transactionService := service.NewTransactionService(store, inventory, ledger, coordinator, notifier, clk, cfg.Engine)

	// 背景工作
	sweeper := worker.NewExpirationSweeper(store, coordinator, notifier, clk, cfg.Engine)
	var lock cache.SweepLock
	if cfg.Sweeper.LockEnabled {
		lock = cache.NewRedisSweepLock(rdb, cfg.Sweeper.LockTTL)
	}
	worker.NewScheduler("expiration-sweep", cfg.Sweeper.Interval, lock, func(ctx context.Context) error {
		_, err := sweeper.RunExpirationSweep(ctx)
		return err
	}).Start(ctx)

	sender := notification.NewLogSender(logger.WithComponent("notification"))
	if err := worker.NewNotificationWorker(queue, sender).Start(ctx); err != nil {
		log.Fatal("Failed to start notification worker", zap.Error(err))
	}

	// HTTP
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	if cfg.Server.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	handler.NewTransactionHandler(transactionService).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("tracing shutdown failed", zap.Error(err))
	}
}

func newNotificationQueue(ctx context.Context, cfg config.NotificationConfig, rdb *redis.Client) (notification.Queue, func(), error) {
	switch cfg.Transport {
	case "memory":
		return notification.NewMemoryQueue(cfg.BufferSize), func() {}, nil
	case "amqp":
		q, err := notification.NewAMQPQueue(notification.AMQPConfig{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
			Queue:    cfg.AMQPQueue,
		})
		if err != nil {
			return nil, nil, err
		}
		return q, func() {
			if err := q.Close(); err != nil {
				logger.WithComponent("mq").Warn("close amqp queue failed", zap.Error(err))
			}
		}, nil
	default:
		q, err := notification.NewRedisStreamQueue(ctx, rdb, "", nil)
		if err != nil {
			return nil, nil, err
		}
		return q, func() {}, nil
	}
}
