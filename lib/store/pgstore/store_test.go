package pgstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("SKV_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SKV_TEST_POSTGRES_DSN not set")
	}

	s, err := New(Config{DSN: dsn, Table: fmt.Sprintf("skv_test_%d", time.Now().UnixNano())})
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Unexpected error during Migrate: %v", err)
	}

	t.Cleanup(func() {
		_ = s.db.Migrator().DropTable(s.table)
		_ = s.Close()
	})
	return s
}

func TestPostgresStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "PostgresStore", func(t *testing.T) store.IStore {
		return newTestStore(t)
	})
}

func TestPostgresStoreKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	s.now = func() time.Time { return first }
	_ = s.Write("k", []byte("1"))
	s.now = func() time.Time { return second }
	_ = s.Write("k", []byte("2"))

	created, _ := s.CreatedAt("k")
	updated, _ := s.UpdatedAt("k")
	if !created.Equal(first) || !updated.Equal(second) {
		t.Errorf("Expected created=%v updated=%v, got created=%v updated=%v", first, second, created, updated)
	}
}
