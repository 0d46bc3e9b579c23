package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInit_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c := Init("")

	if c.Mode != "server" {
		t.Fatalf("expected default mode server, got %q", c.Mode)
	}
	if c.StoreDriver != "cassandra" {
		t.Fatalf("expected default driver cassandra, got %q", c.StoreDriver)
	}
	if c.KafkaTopic != "feed-activity" {
		t.Fatalf("unexpected kafka topic %q", c.KafkaTopic)
	}
	if c.FeedCacheTTL != time.Minute {
		t.Fatalf("expected 60s cache ttl, got %s", c.FeedCacheTTL)
	}
	if c.JWTTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", c.JWTTTL)
	}
	if Get() != c {
		t.Fatal("Get() must return the instance loaded by Init")
	}
}

func TestInit_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MODE", "worker")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("FEED_CACHE_TTL", "0")
	t.Setenv("KAFKA_READ_TIMEOUT", "not-a-duration")
	t.Setenv("WORKER_COUNT", "4")

	c := Init("")

	if c.Mode != "worker" {
		t.Fatalf("expected mode worker, got %q", c.Mode)
	}
	if c.StoreDriver != "postgres" {
		t.Fatalf("expected driver postgres, got %q", c.StoreDriver)
	}
	if c.FeedCacheTTL != 0 {
		t.Fatalf("expected caching disabled, got %s", c.FeedCacheTTL)
	}
	if c.KafkaReadTO != 10*time.Second {
		t.Fatalf("expected fallback read timeout, got %s", c.KafkaReadTO)
	}
	if c.WorkerCount != 4 {
		t.Fatalf("expected 4 workers, got %d", c.WorkerCount)
	}
}

func TestInit_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "feed.yaml")
	data := []byte("server_addr: \":9999\"\nredis_addr: cache:6379\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c := Init(path)

	if c.ServerAddr != ":9999" {
		t.Fatalf("expected server addr from file, got %q", c.ServerAddr)
	}
	if c.RedisAddr != "cache:6379" {
		t.Fatalf("expected redis addr from file, got %q", c.RedisAddr)
	}
}
