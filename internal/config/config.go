package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// A Config represents all configuration of both services
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Log            LogConfig            `yaml:"log"`
	AWS            AWSConfig            `yaml:"aws"`
	Queues         QueuesConfig         `yaml:"queues"`
	Consumer       ConsumerConfig       `yaml:"consumer"`
	DLQMonitor     DLQMonitorConfig     `yaml:"dlq_monitor"`
	Delivery       DeliveryConfig       `yaml:"delivery"`
	Database       DatabaseConfig       `yaml:"database"`
	Cache          CacheConfig          `yaml:"cache"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Kafka          KafkaConfig          `yaml:"kafka"`
}

// A ServerConfig contains configurations for HTTP server
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// A LogConfig contains logger settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// An AWSConfig contains settings for the SQS client. Credentials come from the environment only
type AWSConfig struct {
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	AccessKeyID string `yaml:"-"`
	SecretKey   string `yaml:"-"`
}

// A QueuesConfig holds queue URLs. An empty URL disables whatever needs that queue
type QueuesConfig struct {
	Standard    string `yaml:"standard_url"`
	FIFO        string `yaml:"fifo_url"`
	StandardDLQ string `yaml:"standard_dlq_url"`
	FIFODLQ     string `yaml:"fifo_dlq_url"`
}

// A ConsumerConfig contains polling settings shared by the standard and FIFO consumers
type ConsumerConfig struct {
	MaxMessages      int           `yaml:"max_messages"`
	WaitTime         time.Duration `yaml:"wait_time"`
	PollErrorBackoff time.Duration `yaml:"poll_error_backoff"`
	StopTimeout      time.Duration `yaml:"stop_timeout"`
	FailureMarker    string        `yaml:"failure_marker"`
	AckAttempts      int           `yaml:"ack_attempts"`
	AckDelay         time.Duration `yaml:"ack_delay"`
	DedupWindow      time.Duration `yaml:"dedup_window"`
	DedupCapacity    int           `yaml:"dedup_capacity"`
}

// A DLQMonitorConfig contains polling settings for the dead-letter queues
type DLQMonitorConfig struct {
	MaxMessages int           `yaml:"max_messages"`
	WaitTime    time.Duration `yaml:"wait_time"`
	Interval    time.Duration `yaml:"interval"`
}

// A DeliveryConfig contains settings of the delivery processor
type DeliveryConfig struct {
	ProcessingTime time.Duration `yaml:"processing_time"`
	DefaultAddress string        `yaml:"default_address"`
}

// A DatabaseConfig contains settings for Postgres. Host left empty keeps deliveries in memory
type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string
	Password           string
	Database           string
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConnections int           `yaml:"max_open_connections"`
	MinOpenConnections int           `yaml:"min_open_connections"`
	MinIdleConnections int           `yaml:"min_idle_connections"`
	HealthCheckPeriod  time.Duration `yaml:"health_check_period"`
	Retry              RetryConfig   `yaml:"retry"`
}

// A CacheConfig represents settings for cache
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// A RetryConfig represents retry configurations
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// A CircuitBreakerConfig represents circuit breaker configurations
type CircuitBreakerConfig struct {
	MaxFailers       int           `yaml:"max_failers"`
	Timeout          time.Duration `yaml:"timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

// A KafkaConfig contains settings for the delivery event topic. No brokers disables it
type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// LoadConfig loads data into Config structure from a file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	config.loadEnv()
	config.applyDefaults()
	return &config, nil
}

// loadEnv loads data into Config structure from the environmental variables
func (c *Config) loadEnv() {
	_ = godotenv.Load("deployments/.env")

	setFromEnv(&c.AWS.Region, "AWS_REGION")
	setFromEnv(&c.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setFromEnv(&c.AWS.SecretKey, "AWS_SECRET_ACCESS_KEY")
	setFromEnv(&c.AWS.Endpoint, "SQS_ENDPOINT")

	setFromEnv(&c.Queues.Standard, "SQS_QUEUE_URL_STANDARD")
	setFromEnv(&c.Queues.FIFO, "SQS_QUEUE_URL_FIFO")
	setFromEnv(&c.Queues.StandardDLQ, "SQS_QUEUE_URL_STANDARD_DLQ")
	setFromEnv(&c.Queues.FIFODLQ, "SQS_QUEUE_URL_FIFO_DLQ")

	setFromEnv(&c.Database.User, "POSTGRES_USER")
	setFromEnv(&c.Database.Password, "POSTGRES_PASSWORD")
	setFromEnv(&c.Database.Database, "POSTGRES_DB")

	setFromEnv(&c.Kafka.Brokers, "KAFKA_BROKERS")
	setFromEnv(&c.Kafka.Topic, "KAFKA_TOPIC")
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Consumer.MaxMessages == 0 {
		c.Consumer.MaxMessages = 10
	}
	if c.Consumer.WaitTime == 0 {
		c.Consumer.WaitTime = 20 * time.Second
	}
	if c.Consumer.PollErrorBackoff == 0 {
		c.Consumer.PollErrorBackoff = 5 * time.Second
	}
	if c.Consumer.StopTimeout == 0 {
		c.Consumer.StopTimeout = 10 * time.Second
	}
	if c.Consumer.AckAttempts == 0 {
		c.Consumer.AckAttempts = 3
	}
	if c.Consumer.AckDelay == 0 {
		c.Consumer.AckDelay = 200 * time.Millisecond
	}
	if c.Consumer.DedupWindow == 0 {
		c.Consumer.DedupWindow = 5 * time.Minute
	}
	if c.Consumer.DedupCapacity == 0 {
		c.Consumer.DedupCapacity = 10000
	}
	if c.DLQMonitor.MaxMessages == 0 {
		c.DLQMonitor.MaxMessages = 10
	}
	if c.DLQMonitor.WaitTime == 0 {
		c.DLQMonitor.WaitTime = 5 * time.Second
	}
	if c.DLQMonitor.Interval == 0 {
		c.DLQMonitor.Interval = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// DatabaseEnabled reports whether deliveries should be persisted in Postgres
func (c *Config) DatabaseEnabled() bool {
	return strings.TrimSpace(c.Database.Host) != ""
}

// Validate checks if the most important fields are properly filled
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Consumer.MaxMessages < 1 || c.Consumer.MaxMessages > 10 {
		return fmt.Errorf("consumer max_messages must be within 1..10, got %d", c.Consumer.MaxMessages)
	}
	if c.Consumer.WaitTime < 0 || c.Consumer.WaitTime > 20*time.Second {
		return fmt.Errorf("consumer wait_time must be within 0..20s, got %s", c.Consumer.WaitTime)
	}
	if c.DLQMonitor.MaxMessages < 1 || c.DLQMonitor.MaxMessages > 10 {
		return fmt.Errorf("dlq_monitor max_messages must be within 1..10, got %d", c.DLQMonitor.MaxMessages)
	}
	if c.DLQMonitor.WaitTime < 0 || c.DLQMonitor.WaitTime > 20*time.Second {
		return fmt.Errorf("dlq_monitor wait_time must be within 0..20s, got %s", c.DLQMonitor.WaitTime)
	}
	if c.Consumer.StopTimeout <= 0 {
		return errors.New("consumer stop_timeout must be positive")
	}
	if c.DLQMonitor.Interval <= 0 {
		return errors.New("dlq_monitor interval must be positive")
	}
	if c.Cache.Capacity <= 0 {
		return errors.New("cache capacity must be positive")
	}
	if c.DatabaseEnabled() && (c.Database.Port <= 0 || c.Database.Port > 65535) {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	return nil
}
