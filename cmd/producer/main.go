package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"delivery/internal/config"
	"delivery/internal/models"
	"delivery/internal/sqs"
)

const failureMarker = "실패테스트"

var products = []models.OrderItem{
	{ProductID: "p-100", ProductName: "키보드", Price: 49.9},
	{ProductID: "p-200", ProductName: "마우스", Price: 19.5},
	{ProductID: "p-300", ProductName: "모니터", Price: 219},
	{ProductID: "p-400", ProductName: "헤드셋", Price: 79.99},
}

func generateOrder(customerID string, fail bool) *models.OrderEvent {
	items := make([]models.OrderItem, 0, 2)
	for range rand.Intn(2) + 1 {
		item := products[rand.Intn(len(products))]
		item.Quantity = rand.Intn(3) + 1
		items = append(items, item)
	}
	if fail {
		items[0].ProductName = failureMarker
	}

	if customerID == "" {
		customerID = fmt.Sprintf("cust%04d", rand.Intn(10000))
	}

	return &models.OrderEvent{
		OrderID:     uuid.NewString(),
		CustomerID:  customerID,
		Items:       items,
		TotalAmount: models.CalculateTotal(items),
		Timestamp:   time.Now().UTC(),
	}
}

func main() {
	configPath := flag.String("config", "config/config.yml", "Path to the configuration file")
	count := flag.Int("count", 1, "Number of orders")
	queue := flag.String("queue", "standard", "Target queue: standard or fifo")
	customer := flag.String("customer", "", "Customer id of every order, random when empty")
	fail := flag.Bool("fail", false, "Mark orders so the standard consumer fails them")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	target, err := models.ParseQueueType(*queue)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid queue")
	}

	ctx := context.Background()
	client, err := sqs.NewClient(ctx, cfg.AWS)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize SQS client")
	}
	publisher := sqs.NewPublisher(client, cfg.Queues, nil, &logger)

	var failed int
	for i := range *count {
		order := generateOrder(*customer, *fail)

		messageID, err := publisher.Publish(ctx, order, target)
		if err != nil {
			failed++
			logger.Error().Err(err).Int("n", i+1).Msg("Failed to send order")
			continue
		}
		fmt.Printf("Sent order: %s (customer %s, message %s)\n", order.OrderID, order.CustomerID, messageID)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
