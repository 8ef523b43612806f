package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bus drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
	DriverPubSub = "pubsub"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Bus           BusConfig           `mapstructure:"bus"`
	Redis         RedisConfig         `mapstructure:"redis"`
	PubSub        PubSubConfig        `mapstructure:"pubsub"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Idempotency   IdempotencyConfig   `mapstructure:"idempotency"`
	Services      ServicesConfig      `mapstructure:"services"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type BusConfig struct {
	Driver         string        `mapstructure:"driver"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	PublishRetries uint          `mapstructure:"publish_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	BatchSize      int64         `mapstructure:"batch_size"`
	// SubscribeBackoff caps the delay between failed polls.
	SubscribeBackoff time.Duration `mapstructure:"subscribe_backoff"`
	// ClaimMinIdle is how long a Redis stream entry may stay unacknowledged
	// by another consumer before it is taken over. Zero disables it.
	ClaimMinIdle            time.Duration `mapstructure:"claim_min_idle"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ServicesConfig holds the consumer group and listen port of each service.
type ServicesConfig struct {
	Products ServiceConfig `mapstructure:"products"`
	Orders   ServiceConfig `mapstructure:"orders"`
	Database ServiceConfig `mapstructure:"database"`
}

type ServiceConfig struct {
	Group string `mapstructure:"group"`
	Port  int    `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/storefront")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}

	switch c.Bus.Driver {
	case DriverRedis:
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
	case DriverPubSub:
		if c.PubSub.ProjectID == "" {
			errs = append(errs, fmt.Errorf("pubsub.project_id is required for the pubsub driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("bus.driver must be one of redis, memory, pubsub, got %q", c.Bus.Driver))
	}
	if c.Bus.PublishTimeout <= 0 {
		errs = append(errs, fmt.Errorf("bus.publish_timeout must be positive"))
	}
	if c.Bus.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("bus.poll_timeout must be positive"))
	}
	if c.Bus.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("bus.batch_size must be positive"))
	}

	for name, svc := range map[string]ServiceConfig{
		"products": c.Services.Products,
		"orders":   c.Services.Orders,
		"database": c.Services.Database,
	} {
		if svc.Group == "" {
			errs = append(errs, fmt.Errorf("services.%s.group is required", name))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Bus defaults
	v.SetDefault("bus.driver", DriverRedis)
	v.SetDefault("bus.publish_timeout", "5s")
	v.SetDefault("bus.publish_retries", 3)
	v.SetDefault("bus.retry_delay", "100ms")
	v.SetDefault("bus.poll_timeout", "1s")
	v.SetDefault("bus.batch_size", 10)
	v.SetDefault("bus.subscribe_backoff", "30s")
	v.SetDefault("bus.claim_min_idle", "1m")
	v.SetDefault("bus.circuit_breaker_threshold", 5)
	v.SetDefault("bus.circuit_breaker_timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("pubsub.project_id", "")

	v.SetDefault("idempotency.ttl", "24h")

	// Service defaults
	v.SetDefault("services.products.group", "product-service-group")
	v.SetDefault("services.products.port", 8001)
	v.SetDefault("services.orders.group", "order-service-group")
	v.SetDefault("services.orders.port", 8002)
	v.SetDefault("services.database.group", "database-service-group")
	v.SetDefault("services.database.port", 8003)

	v.SetDefault("instance_id", "storefront-1")
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// envKeyReplacer maps nested keys such as bus.driver to STOREFRONT_BUS_DRIVER.
var envKeyReplacer = strings.NewReplacer(".", "_")
