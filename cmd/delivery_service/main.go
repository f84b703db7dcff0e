package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"delivery/internal/cache"
	"delivery/internal/cache/lru_cache"
	"delivery/internal/config"
	"delivery/internal/db"
	"delivery/internal/interfaces"
	"delivery/internal/kafka"
	"delivery/internal/metrics"
	"delivery/internal/models"
	"delivery/internal/server"
	"delivery/internal/service"
	"delivery/internal/sqs"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "Path to the configuration file")
	port := flag.Int("port", 0, "HTTP port, overrides server.port")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	client, err := sqs.NewClient(ctx, cfg.AWS)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize SQS client")
	}

	var (
		database   *db.DB
		repository interfaces.DeliveryRepository
	)
	if cfg.DatabaseEnabled() {
		dbLogger := logger.With().Str("component", "database").Logger()
		database, err = db.NewDBWithConfig(ctx, cfg, &dbLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize database")
		}
		repository = db.NewDeliveryRepo(database)
	} else {
		logger.Warn().Msg("Database host is not set, deliveries are kept in memory")
	}

	lruCache, err := lru_cache.NewLRUCache[string, *models.DeliveryEvent](cfg.Cache.Capacity)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LRU cache")
	}

	cacheLogger := logger.With().Str("component", "cache-manager").Logger()
	cacheManager := cache.NewManager(lruCache, repository, &cacheLogger)

	var (
		notifier    interfaces.DeliveryNotifier
		kafkaWriter *kafka.Notifier
	)
	if kafka.Enabled(cfg.Kafka) {
		kafkaLogger := logger.With().Str("component", "kafka-notifier").Logger()
		kafkaWriter, err = kafka.NewNotifier(cfg.Kafka, &kafkaLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize Kafka notifier")
		}
		notifier = kafkaWriter
	}

	serviceLogger := logger.With().Str("component", "delivery-service").Logger()
	deliveryService := service.NewDeliveryService(
		cacheManager, notifier, cfg.Delivery, cfg.CircuitBreaker, &serviceLogger,
	)

	if err := deliveryService.WarmCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to warm cache, continuing with empty cache")
	}

	opts := sqs.ConsumerOptionsFromConfig(cfg)

	standardLogger := logger.With().Str("component", "standard-consumer").Logger()
	standardConsumer := sqs.NewStandardConsumer(
		cfg.Queues.Standard, client, deliveryService, opts, cfg.Consumer.FailureMarker, m, &standardLogger,
	)

	fifoLogger := logger.With().Str("component", "fifo-consumer").Logger()
	fifoConsumer, err := sqs.NewFIFOConsumer(cfg.Queues.FIFO, client, deliveryService, opts, m, &fifoLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize FIFO consumer")
	}

	publisherLogger := logger.With().Str("component", "publisher").Logger()
	publisher := sqs.NewPublisher(client, cfg.Queues, m, &publisherLogger)

	monitorLogger := logger.With().Str("component", "dlq-monitor").Logger()
	monitor := sqs.NewDLQMonitor(
		cfg.Queues.StandardDLQ, cfg.Queues.FIFODLQ, client, sqs.DLQMonitorOptionsFromConfig(cfg), m, &monitorLogger,
	)
	monitor.SetReprocessor(sqs.RepublishTo(publisher))

	serverLogger := logger.With().Str("component", "http-server").Logger()
	httpServer := server.NewDeliveryServer(
		cfg, server.DeliveryDeps{
			Deliveries: deliveryService,
			Standard:   standardConsumer,
			FIFO:       fifoConsumer,
			Failures:   standardConsumer,
			Monitor:    monitor,
			Metrics:    metrics.Handler(registry),
		}, &serverLogger,
	)

	workers := []struct {
		name   string
		worker interface {
			Start(ctx context.Context) error
			Stop(ctx context.Context) error
		}
	}{
		{"standard consumer", standardConsumer},
		{"FIFO consumer", fifoConsumer},
		{"DLQ monitor", monitor},
	}
	for _, w := range workers {
		if err := w.worker.Start(ctx); err != nil {
			logger.Fatal().Err(err).Str("worker", w.name).Msg("Failed to start worker")
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("HTTP server failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var (
		stopWg     sync.WaitGroup
		mu         sync.Mutex
		stopErrors []error
	)
	for _, w := range workers {
		stopWg.Add(1)
		go func() {
			defer stopWg.Done()
			if err := w.worker.Stop(shutdownCtx); err != nil {
				mu.Lock()
				stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", w.name, err))
				mu.Unlock()
			}
		}()
	}

	stopWg.Add(1)
	go func() {
		defer stopWg.Done()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			mu.Lock()
			stopErrors = append(stopErrors, err)
			mu.Unlock()
		}
	}()

	stopWg.Wait()

	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to close Kafka notifier: %w", err))
		}
	}
	if database != nil {
		database.Close()
	}

	if err := errors.Join(stopErrors...); err != nil {
		logger.Error().Err(err).Int("error_count", len(stopErrors)).Msg("Some components failed to stop gracefully")
		os.Exit(1)
	}

	logger.Info().Msg("Delivery service stopped")
}
