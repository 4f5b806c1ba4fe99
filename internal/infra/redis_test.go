package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	if client.Options().ClientName != redisClientName {
		t.Fatalf("client name = %q, want %q", client.Options().ClientName, redisClientName)
	}
	if client.Options().PoolSize <= 0 {
		t.Fatalf("pool size not set")
	}
}

func TestNewRedisClientValidation(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewRedisClient(context.Background(), "://not-a-url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}
