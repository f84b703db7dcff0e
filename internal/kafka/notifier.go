// Package kafka publishes created deliveries to a Kafka topic
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"delivery/internal/codec"
	"delivery/internal/config"
	"delivery/internal/models"
)

// A Notifier writes delivery events keyed by order id, so events of one order share a partition
type Notifier struct {
	writer *kafka.Writer
	codec  codec.JSON
	logger *zerolog.Logger
}

// Brokers splits the comma separated broker list, dropping empty entries
func Brokers(cfg config.KafkaConfig) []string {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Enabled reports whether delivery events should be published
func Enabled(cfg config.KafkaConfig) bool {
	return len(Brokers(cfg)) > 0 && strings.TrimSpace(cfg.Topic) != ""
}

// NewNotifier creates a notifier for the configured topic
func NewNotifier(cfg config.KafkaConfig, logger *zerolog.Logger) (*Notifier, error) {
	if !Enabled(cfg) {
		return nil, fmt.Errorf("kafka brokers and topic have to be set")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(Brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(
			func(msg string, args ...interface{}) {
				logger.Error().
					Str("kafka_error", fmt.Sprintf(msg, args...)).
					Msg("kafka writer error")
			},
		),
	}

	return &Notifier{writer: writer, logger: logger}, nil
}

// Notify publishes one delivery event
func (n *Notifier) Notify(ctx context.Context, delivery *models.DeliveryEvent) error {
	msg, err := n.newMessage(delivery)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write delivery %s: %w", delivery.DeliveryID, err)
	}

	n.logger.Debug().
		Str("order_id", delivery.OrderID).
		Str("delivery_id", delivery.DeliveryID).
		Str("topic", n.writer.Topic).
		Msg("delivery event published")
	return nil
}

func (n *Notifier) newMessage(delivery *models.DeliveryEvent) (kafka.Message, error) {
	data, err := n.codec.EncodeDelivery(delivery)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode delivery %s: %w", delivery.DeliveryID, err)
	}
	return kafka.Message{
		Key:   []byte(delivery.OrderID),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(delivery.Status)},
		},
	}, nil
}

// Close flushes pending messages and closes the writer
func (n *Notifier) Close() error {
	if err := n.writer.Close(); err != nil {
		n.logger.Error().Err(err).Msg("Error closing Kafka writer")
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}
