package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete worker configuration, loadable from environment
// variables (ORDERFLOW_ prefix), flags, or YAML config files.
type Config struct {
	ProbeAddr   string `default:"0.0.0.0:8081" usage:"liveness/readiness listen address" flag:"probe-addr"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERFLOW_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr   string `default:"localhost:6379" usage:"Redis address for the publisher lock" flag:"redis-addr"`
	Kafka       KafkaConfig
	Publisher   PublisherConfig
	Consumer    ConsumerConfig
	Graceful    GracefulConfig
}

// KafkaConfig names the brokers and destination topics.
type KafkaConfig struct {
	Brokers      []string `default:"localhost:9092" usage:"Kafka broker addresses"`
	PaymentTopic string   `default:"payment.events" usage:"Topic for PAYMENT aggregate events" flag:"payment-topic"`
	DefaultTopic string   `default:"orderflow.outbox.default" usage:"Topic for all other events" flag:"default-topic"`
}

// PublisherConfig tunes the outbox drain loop.
type PublisherConfig struct {
	Interval  time.Duration `default:"1s" usage:"Outbox drain interval"`
	BatchSize int           `default:"100" usage:"Max events fetched per tick" flag:"batch-size"`
	LockName  string        `default:"outbox:publisher" usage:"Distributed lock name" flag:"lock-name"`
	LockTTL   time.Duration `default:"5s" usage:"Distributed lock TTL; must exceed one batch duration" flag:"lock-ttl"`
}

// ConsumerConfig tunes the payment event consumer.
type ConsumerConfig struct {
	GroupID string `default:"orderflow-payment" usage:"Kafka consumer group id" flag:"group-id"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, and applies platform fallbacks.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERFLOW",
		Files:     []string{"config.yaml", "/etc/orderflow/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	if cfg.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			cfg.DatabaseURL = v
		}
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ORDERFLOW_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}
