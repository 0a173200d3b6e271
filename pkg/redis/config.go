package redis

import (
	"time"

	"github.com/Alijeyrad/carelink/config"
)

// Config holds Redis connection settings. An empty Addr disables Redis.
type Config struct {
	Addr     string
	DB       int
	Username string
	Password string

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (c Config) Enabled() bool { return c.Addr != "" }

// FromCentralConfig converts central config.RedisConfig to package Config,
// keeping defaults for anything left at zero.
func FromCentralConfig(c config.RedisConfig) Config {
	cfg := DefaultConfig()
	cfg.Addr = c.Addr
	cfg.DB = c.DB
	cfg.Username = c.Username
	cfg.Password = c.Password

	if c.PoolSize > 0 {
		cfg.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		cfg.MinIdleConns = c.MinIdleConns
	}
	if c.DialTimeoutSeconds > 0 {
		cfg.DialTimeout = seconds(c.DialTimeoutSeconds)
	}
	if c.ReadTimeoutSeconds > 0 {
		cfg.ReadTimeout = seconds(c.ReadTimeoutSeconds)
	}
	if c.WriteTimeoutSeconds > 0 {
		cfg.WriteTimeout = seconds(c.WriteTimeoutSeconds)
	}
	return cfg
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
