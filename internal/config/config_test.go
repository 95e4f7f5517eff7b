package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	c := &Config{}
	c.SetDefaults()
	c.Database.Username = "checkout"
	c.Database.DBName = "checkout"
	return c
}

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "memory", c.Bus.Driver)
	assert.Equal(t, "checkout.saga.events", c.Bus.Topic)
	assert.Equal(t, 8, c.Bus.Partitions)
	assert.Equal(t, 24*time.Hour, c.Saga.IdempotencyTTL)
	assert.Equal(t, 15*time.Minute, c.Saga.ReservationTTL)
	assert.Equal(t, 10*time.Second, c.Gateway.CaptureTimeout)
	assert.Equal(t, 5, c.Gateway.RefundRetries)
	assert.Equal(t, "checkout-api", c.Saga.Producer)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = -1 }, "invalid server port"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"missing db user", func(c *Config) { c.Database.Username = "" }, "database username is required"},
		{"missing db name", func(c *Config) { c.Database.DBName = "" }, "database name is required"},
		{"missing redis host", func(c *Config) { c.Redis.Host = "" }, "redis host is required"},
		{"unknown bus driver", func(c *Config) { c.Bus.Driver = "rabbit" }, "unknown bus driver"},
		{"kafka without brokers", func(c *Config) { c.Bus.Driver = "kafka"; c.Bus.Brokers = nil }, "at least one broker"},
		{"idempotency ttl too short", func(c *Config) { c.Saga.IdempotencyTTL = time.Second }, "idempotency ttl too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestKafkaDriverWithBrokers(t *testing.T) {
	c := validConfig()
	c.Bus.Driver = "kafka"
	c.Bus.Brokers = []string{"localhost:9092"}
	assert.NoError(t, c.Validate())
}

func TestGetDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     3307,
		Username: "svc",
		Password: "secret",
		DBName:   "checkout",
	}
	dsn := d.GetDSN()
	assert.Contains(t, dsn, "svc:secret@tcp(db.internal:3307)/checkout")
	assert.Contains(t, dsn, "parseTime=True")
}

func TestGetAddr(t *testing.T) {
	s := ServerConfig{}
	assert.Equal(t, "0.0.0.0:8080", s.GetAddr())

	s = ServerConfig{Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, "127.0.0.1:9000", s.GetAddr())

	r := RedisConfig{}
	assert.Equal(t, "localhost:6379", r.GetAddr())
}
