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

	"storelocator-service/config"
	"storelocator-service/internal/api"
	"storelocator-service/internal/broker"
	"storelocator-service/internal/geocode"
	"storelocator-service/internal/ocapi"
	"storelocator-service/internal/redisclient"
	"storelocator-service/internal/search"
	"storelocator-service/internal/service"
	"storelocator-service/internal/store"
	"storelocator-service/internal/timeslot"
	"storelocator-service/internal/util"
	"storelocator-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storelocator service")

	tp, err := util.InitTracer("storelocator-service", cfg.Observ.JaegerEndpoint)
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

	auditStore, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer auditStore.Close()
	log.Println("Database connected")

	kv, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 0)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer kv.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStore)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	commerceTokens := ocapi.NewClientCredentialsProvider(cfg.OCAPI.TokenURL, cfg.OCAPI.ClientID, cfg.OCAPI.ClientSecret)
	directory := ocapi.NewStoresClient(cfg.OCAPI.Host, cfg.OCAPI.SiteID, cfg.OCAPI.ClientID, commerceTokens, kv)
	shopperContexts := ocapi.NewShopperContextClient(cfg.OCAPI.Host, cfg.OCAPI.SiteID, commerceTokens)
	reservations := timeslot.NewClient(
		cfg.Timeslot.Host, cfg.Timeslot.CorsProxy, cfg.Timeslot.AuthURL,
		cfg.Timeslot.ClientID, cfg.Timeslot.ClientSecret, kv)
	geocoder := geocode.NewHTTPClient(cfg.Geocode.Host)

	storeSync := service.NewStoreSync(directory, shopperContexts, reservations, eventPublisher)
	searchSvc := search.NewService(directory, geocoder, search.NewMatcher(search.DefaultMatcherConfig))

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	auditConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicStore, cfg.Kafka.ConsumerGroup)
	auditWorker := worker.NewAuditWorker(auditConsumer, auditStore)
	go func() {
		if err := auditWorker.Start(workerCtx); err != nil {
			log.Printf("Audit worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(storeSync, searchSvc, directory, auditStore)
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
	auditWorker.Stop()

	log.Println("Server exited")
}
