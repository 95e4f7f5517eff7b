package config

import (
	"fmt"
	"time"
)

// Config represents the global configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Bus       BusConfig       `mapstructure:"bus"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Saga      SagaConfig      `mapstructure:"saga"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// BusConfig represents event bus configuration
type BusConfig struct {
	Driver     string        `mapstructure:"driver"` // memory, kafka
	Brokers    []string      `mapstructure:"brokers"`
	Topic      string        `mapstructure:"topic"`
	Partitions int           `mapstructure:"partitions"`
	BufferSize int           `mapstructure:"buffer_size"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Checkout struct {
		RPS   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"checkout"`
}

// GatewayConfig represents payment gateway client configuration
type GatewayConfig struct {
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
	RefundRetries  int           `mapstructure:"refund_retries"`
	RefundBackoff  time.Duration `mapstructure:"refund_backoff"`
	BreakerWindow  time.Duration `mapstructure:"breaker_window"`
	BreakerCooloff time.Duration `mapstructure:"breaker_cooloff"`
}

// SagaConfig represents saga coordination configuration
type SagaConfig struct {
	Producer          string        `mapstructure:"producer"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotency_ttl"`
	ReservationTTL    time.Duration `mapstructure:"reservation_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileAfter    time.Duration `mapstructure:"reconcile_after"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
}

// GetAddr returns the server address
func (s *ServerConfig) GetAddr() string {
	host := s.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := s.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// GetDSN returns the database DSN
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=10s",
		d.Username, d.Password, d.Host, d.Port, d.DBName)
}

// GetAddr returns the Redis address
func (r *RedisConfig) GetAddr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	switch c.Bus.Driver {
	case "memory":
	case "kafka":
		if len(c.Bus.Brokers) == 0 {
			return fmt.Errorf("kafka bus requires at least one broker")
		}
	default:
		return fmt.Errorf("unknown bus driver: %s", c.Bus.Driver)
	}

	// Marks must outlive the broker's redelivery window, otherwise a late
	// redelivery would be applied twice.
	if c.Saga.IdempotencyTTL < time.Minute {
		return fmt.Errorf("idempotency ttl too short: %s", c.Saga.IdempotencyTTL)
	}

	return nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.MaxRetries == 0 {
		c.Redis.MaxRetries = 3
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	if c.Bus.Driver == "" {
		c.Bus.Driver = "memory"
	}
	if c.Bus.Topic == "" {
		c.Bus.Topic = "checkout.saga.events"
	}
	if c.Bus.Partitions == 0 {
		c.Bus.Partitions = 8
	}
	if c.Bus.BufferSize == 0 {
		c.Bus.BufferSize = 1024
	}
	if c.Bus.RetryDelay == 0 {
		c.Bus.RetryDelay = time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "checkout"
	}

	if c.RateLimit.Checkout.RPS == 0 {
		c.RateLimit.Checkout.RPS = 50
	}
	if c.RateLimit.Checkout.Burst == 0 {
		c.RateLimit.Checkout.Burst = 100
	}

	if c.Gateway.CaptureTimeout == 0 {
		c.Gateway.CaptureTimeout = 10 * time.Second
	}
	if c.Gateway.RefundRetries == 0 {
		c.Gateway.RefundRetries = 5
	}
	if c.Gateway.RefundBackoff == 0 {
		c.Gateway.RefundBackoff = 2 * time.Second
	}
	if c.Gateway.BreakerWindow == 0 {
		c.Gateway.BreakerWindow = time.Minute
	}
	if c.Gateway.BreakerCooloff == 0 {
		c.Gateway.BreakerCooloff = 30 * time.Second
	}

	if c.Saga.Producer == "" {
		c.Saga.Producer = "checkout-api"
	}
	if c.Saga.IdempotencyTTL == 0 {
		c.Saga.IdempotencyTTL = 24 * time.Hour
	}
	if c.Saga.ReservationTTL == 0 {
		c.Saga.ReservationTTL = 15 * time.Minute
	}
	if c.Saga.SweepInterval == 0 {
		c.Saga.SweepInterval = time.Minute
	}
	if c.Saga.ReconcileInterval == 0 {
		c.Saga.ReconcileInterval = 30 * time.Second
	}
	if c.Saga.ReconcileAfter == 0 {
		c.Saga.ReconcileAfter = time.Minute
	}
	if c.Saga.LockTTL == 0 {
		c.Saga.LockTTL = 10 * time.Second
	}
}
