package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alijeyrad/carelink/config"
)

func TestFromCentralConfig(t *testing.T) {
	got := FromCentralConfig(config.RedisConfig{Addr: "redis:6379", PoolSize: 4, ReadTimeoutSeconds: 9})
	if got.PoolSize != 4 || got.ReadTimeout != 9*time.Second {
		t.Fatalf("overrides lost: %+v", got)
	}
	if got.MinIdleConns != 2 || got.DialTimeout != 5*time.Second {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestNewRedisDisabled(t *testing.T) {
	_, err := NewRedis(context.Background(), Config{})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("NewRedis() err = %v, want ErrDisabled", err)
	}
}
