package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"delivery/internal/config"
	"delivery/internal/models"
	"delivery/internal/server"
	"delivery/internal/service"
	"delivery/internal/sqs"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "Path to the configuration file")
	port := flag.Int("port", 8080, "HTTP port, 0 keeps server.port")
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

	client, err := sqs.NewClient(ctx, cfg.AWS)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize SQS client")
	}

	publisherLogger := logger.With().Str("component", "publisher").Logger()
	publisher := sqs.NewPublisher(client, cfg.Queues, nil, &publisherLogger)
	for _, q := range []models.QueueType{models.QueueStandard, models.QueueFIFO} {
		if !publisher.Configured(q) {
			logger.Warn().Str("queue", string(q)).Msg("Queue url is not set, orders for it will be rejected")
		}
	}

	serviceLogger := logger.With().Str("component", "order-service").Logger()
	orderService := service.NewOrderService(publisher, &serviceLogger)

	serverLogger := logger.With().Str("component", "http-server").Logger()
	httpServer := server.NewOrderServer(cfg, orderService, &serverLogger)

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
		logger.Fatal().Err(err).Msg("Failed to start application")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gracefully")
		return
	}

	logger.Info().Msg("Order service stopped")
}
