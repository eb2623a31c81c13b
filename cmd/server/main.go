package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"game-economy-service/config"
	"game-economy-service/internal/api"
	"game-economy-service/internal/broker"
	"game-economy-service/internal/redisclient"
	"game-economy-service/internal/service"
	"game-economy-service/internal/store"
	"game-economy-service/internal/util"
	"game-economy-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting game economy service")

	tp, err := util.InitTracer("game-economy-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	auditProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAudit)
	defer auditProducer.Close()
	powerProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPower)
	defer powerProducer.Close()
	log.Println("Kafka producers initialized")

	auditPublisher := broker.NewAuditPublisher(auditProducer, redisClient)
	powerPublisher := broker.NewPowerPublisher(powerProducer)

	st := store.NewRedis(redisClient)

	ledger := service.NewLedger(st, auditPublisher)
	equipService := service.NewEquipmentService(st, ledger, auditPublisher, powerPublisher, nil)
	enhanceEngine := service.NewEnhancementEngine(st, auditPublisher, powerPublisher, nil)
	marketplace := service.NewMarketplace(st, ledger, equipService, auditPublisher, powerPublisher)
	powerService := service.NewPowerService(st)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	reconcileWorker := worker.NewReconcileWorker(st, ledger,
		time.Duration(cfg.Game.ReconcileIntervalSeconds)*time.Second)
	go reconcileWorker.Start(workerCtx)

	powerConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPower, cfg.Kafka.ConsumerGroup)
	powerWorker := worker.NewPowerWorker(powerConsumer, powerService, redisClient)
	go func() {
		if err := powerWorker.Start(workerCtx); err != nil {
			log.Printf("Power worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(ledger, equipService, enhanceEngine, marketplace, redisClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	powerWorker.Stop()

	log.Println("Server exited")
}
