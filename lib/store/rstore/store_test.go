package rstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
	"github.com/redis/go-redis/v9"
)

// newTestStore connects to SKV_TEST_REDIS_ADDR and uses a fresh prefix per test
func newTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("SKV_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SKV_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	s, err := New(Config{
		Client:      client,
		Prefix:      fmt.Sprintf("skv-test-%d", time.Now().UnixNano()),
		CloseClient: true,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	t.Cleanup(func() {
		_ = s.RemoveAll()
		_ = s.Close()
	})
	return s
}

func TestRedisStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "RedisStore", func(t *testing.T) store.IStore {
		return newTestStore(t)
	})
}

func TestNewNilClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Errorf("Expected ErrNilClient, got %v", err)
	}
}

func TestKeyLayout(t *testing.T) {
	s, err := New(Config{Client: redis.NewClient(&redis.Options{Addr: "localhost:0"}), CloseClient: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer s.Close()

	if got := s.valueKey("a:b"); got != "skv:v:a:b" {
		t.Errorf("Unexpected value key %q", got)
	}
	if got := s.metaKey("a"); got != "skv:meta:a" {
		t.Errorf("Unexpected meta key %q", got)
	}
	if got := s.keysKey(); got != "skv:keys" {
		t.Errorf("Unexpected key set %q", got)
	}
}

func TestUnreachableRedis(t *testing.T) {
	// nothing listens on port 1
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	s, _ := New(Config{Client: client, Timeout: time.Second, CloseClient: true})
	defer s.Close()

	var storeErr *store.Error
	if err := s.Write("k", []byte("v")); !errors.As(err, &storeErr) || storeErr.Code != store.RetCUnavailable {
		t.Errorf("Expected an unavailable error, got %v", err)
	}

	if _, ok := s.Read("k"); ok {
		t.Errorf("Expected the read to report absence")
	}
	if s.LastError() == nil {
		t.Errorf("Expected the failed read to be recorded")
	}
	if s.Count() != 0 || len(s.Keys()) != 0 {
		t.Errorf("Expected empty results for failed queries")
	}
}
