package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"expensetracker/internal/httpserver"
	"expensetracker/internal/mqhandler"
	"expensetracker/internal/repository"
	"expensetracker/internal/service/emailsync"
	"expensetracker/internal/service/forwarding"
	"expensetracker/pkg/circuitbreaker"
	"expensetracker/pkg/config"
	"expensetracker/pkg/db"
	"expensetracker/pkg/logger"
	"expensetracker/pkg/mq"
	"expensetracker/pkg/redis"
	"expensetracker/pkg/util"
)

const forwardingQueue = "email.synced.forwarding.q"

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting forwarding worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.Int("batch_limit", cfg.Forwarding.BatchLimit),
		zap.Int("max_retries", cfg.Forwarding.MaxRetries),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("DB ready")

	// Redis
	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Forwarding.DedupTTL(), log)
	retryCounter := util.NewRetryCounter(rdb, cfg.Forwarding.DedupTTL())

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// repositories
	ruleRepo := repository.NewRuleRepository(dbConn, log)
	emailRepo := repository.NewEmailRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	directoryRepo := repository.NewDirectoryRepository(dbConn, log)
	integrationRepo := repository.NewIntegrationRepository(dbConn, log)

	// services
	processor := forwarding.New(ruleRepo, directoryRepo, notificationRepo, emailRepo, log)
	syncService := emailsync.NewService(integrationRepo, emailRepo, processor, cfg.Forwarding.BatchLimit, log)

	guarded := mq.NewGuardedPublisher(publisher, circuitbreaker.DefaultConfig(), log)
	handler := mqhandler.NewEmailSyncedHandler(
		syncService, deduper, retryCounter, guarded, cfg.Forwarding.MaxRetries, log,
	)

	// Consumer
	log.Info("Init consumer",
		zap.String("queue", forwardingQueue),
		zap.String("routing_key", mq.RoutingKeyEmailSynced),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, forwardingQueue, mq.RoutingKeyEmailSynced, log)
	if err != nil {
		log.Fatal("Consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(handler.Handle)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Consumer crashed", zap.Error(err))
		}
	}()

	// Ops HTTP server
	router := httpserver.NewRouter(log, dbConn, map[string]httpserver.ReadinessCheck{
		"mq": func() error {
			if !publisher.IsConnected() {
				return errors.New("publisher connection closed")
			}
			if state := guarded.BreakerState(); state == circuitbreaker.StateOpen {
				return fmt.Errorf("publisher circuit breaker %s", state)
			}
			return nil
		},
		"redis": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return rdb.Ping(ctx).Err()
		},
	})
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.Engine,
	}
	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("Forwarding worker running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down forwarding worker gracefully...")

	consumer.Stop()
	select {
	case <-consumerDone:
	case <-time.After(30 * time.Second):
		log.Warn("Timed out waiting for in-flight message")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Forwarding worker shutdown complete")
}
