package testing

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
)

// StoreFactory creates a new, empty store. Stores that need cleanup register it on t.
type StoreFactory func(t *testing.T) store.IStore

// RunIStoreTests runs the IStore conformance suite against the stores created by factory.
func RunIStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Write&Read", func(t *testing.T) {
			testWriteRead(t, factory(t))
		})

		t.Run("WriteMany", func(t *testing.T) {
			testWriteMany(t, factory(t))
		})

		t.Run("ReadMany", func(t *testing.T) {
			testReadMany(t, factory(t))
		})

		t.Run("ReadAll", func(t *testing.T) {
			testReadAll(t, factory(t))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory(t))
		})

		t.Run("RemoveMany", func(t *testing.T) {
			testRemoveMany(t, factory(t))
		})

		t.Run("RemoveAllThenWrite", func(t *testing.T) {
			testRemoveAllThenWrite(t, factory(t))
		})

		t.Run("Queries", func(t *testing.T) {
			testQueries(t, factory(t))
		})

		t.Run("Timestamps", func(t *testing.T) {
			testTimestamps(t, factory(t))
		})

		t.Run("KeyRoundTrip", func(t *testing.T) {
			testKeyRoundTrip(t, factory(t))
		})

		t.Run("GetDBInfo", func(t *testing.T) {
			testGetDBInfo(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustWrite(t *testing.T, s store.IStore, key string, value []byte) {
	t.Helper()
	if err := s.Write(key, value); err != nil {
		t.Fatalf("Unexpected error during Write(%q): %v", key, err)
	}
}

func sortedKeys(pairs []store.KeyValue) []string {
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteRead(t *testing.T, s store.IStore) {
	mustWrite(t, s, "key", []byte("value1"))

	value, ok := s.Read("key")
	if !ok || !bytes.Equal(value, []byte("value1")) {
		t.Fatalf("Expected value1, got %q (ok=%v)", value, ok)
	}

	// last write wins
	mustWrite(t, s, "key", []byte("value2"))
	value, ok = s.Read("key")
	if !ok || !bytes.Equal(value, []byte("value2")) {
		t.Errorf("Expected value2 after overwrite, got %q (ok=%v)", value, ok)
	}

	if value, ok := s.Read("missing"); ok || value != nil {
		t.Errorf("Expected absence for missing key, got %q (ok=%v)", value, ok)
	}

	// reads return copies
	value[0] = 'X'
	if again, _ := s.Read("key"); !bytes.Equal(again, []byte("value2")) {
		t.Errorf("Read should return a copy, stored value changed to %q", again)
	}

	// empty payloads are stored as present
	mustWrite(t, s, "empty", []byte{})
	if value, ok := s.Read("empty"); !ok || len(value) != 0 {
		t.Errorf("Expected empty payload to be present, got %q (ok=%v)", value, ok)
	}
}

func testWriteMany(t *testing.T, s store.IStore) {
	pairs := []store.KeyValue{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "c", Value: []byte("3")},
	}
	if err := s.WriteMany(pairs); err != nil {
		t.Fatalf("Unexpected error during WriteMany: %v", err)
	}

	for _, p := range pairs {
		if value, ok := s.Read(p.Key); !ok || !bytes.Equal(value, p.Value) {
			t.Errorf("Expected %q for key %s, got %q (ok=%v)", p.Value, p.Key, value, ok)
		}
	}

	// overwrite in a batch
	if err := s.WriteMany([]store.KeyValue{{Key: "a", Value: []byte("10")}}); err != nil {
		t.Fatalf("Unexpected error during WriteMany: %v", err)
	}
	if value, _ := s.Read("a"); !bytes.Equal(value, []byte("10")) {
		t.Errorf("Expected batch overwrite, got %q", value)
	}

	if err := s.WriteMany(nil); err != nil {
		t.Errorf("WriteMany with no pairs should succeed, got %v", err)
	}
}

func testReadMany(t *testing.T, s store.IStore) {
	mustWrite(t, s, "k1", []byte("v1"))
	mustWrite(t, s, "k2", []byte("v2"))

	values := s.ReadMany([]string{"k1", "missing", "k2"})
	if len(values) != 2 {
		t.Fatalf("Expected 2 values (missing keys omitted), got %d", len(values))
	}

	found := map[string]bool{}
	for _, v := range values {
		found[string(v)] = true
	}
	if !found["v1"] || !found["v2"] {
		t.Errorf("Expected v1 and v2, got %q", values)
	}

	pairs := s.ReadManyWithKeys([]string{"k2", "missing", "k1"})
	if keys := sortedKeys(pairs); !equalStrings(keys, []string{"k1", "k2"}) {
		t.Errorf("Expected keys [k1 k2], got %v", keys)
	}
	for _, p := range pairs {
		if want := "v" + p.Key[1:]; string(p.Value) != want {
			t.Errorf("Key %s paired with %q, expected %q", p.Key, p.Value, want)
		}
	}

	if values := s.ReadMany(nil); len(values) != 0 {
		t.Errorf("Expected no values for no keys, got %d", len(values))
	}
}

func testReadAll(t *testing.T, s store.IStore) {
	if values := s.ReadAll(); len(values) != 0 {
		t.Errorf("Expected empty ReadAll on empty store, got %d values", len(values))
	}

	expected := map[string]string{}
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("all-%d", i)
		expected[key] = fmt.Sprintf("value-%d", i)
		mustWrite(t, s, key, []byte(expected[key]))
	}

	if values := s.ReadAll(); len(values) != len(expected) {
		t.Errorf("Expected %d values, got %d", len(expected), len(values))
	}

	pairs := s.ReadAllWithKeys()
	if len(pairs) != len(expected) {
		t.Fatalf("Expected %d pairs, got %d", len(expected), len(pairs))
	}
	for _, p := range pairs {
		if expected[p.Key] != string(p.Value) {
			t.Errorf("Key %s paired with %q, expected %q", p.Key, p.Value, expected[p.Key])
		}
	}
}

func testRemove(t *testing.T, s store.IStore) {
	mustWrite(t, s, "key", []byte("value"))

	if err := s.Remove("key"); err != nil {
		t.Fatalf("Unexpected error during Remove: %v", err)
	}
	if _, ok := s.Read("key"); ok {
		t.Errorf("Expected key to be absent after Remove")
	}

	// removal of an absent key is not an error and changes nothing
	mustWrite(t, s, "other", []byte("value"))
	if err := s.Remove("key"); err != nil {
		t.Errorf("Remove of an absent key should succeed, got %v", err)
	}
	if err := s.Remove("never-written"); err != nil {
		t.Errorf("Remove of an absent key should succeed, got %v", err)
	}
	if count := s.Count(); count != 1 {
		t.Errorf("Expected count 1 after idempotent removes, got %d", count)
	}
}

func testRemoveMany(t *testing.T, s store.IStore) {
	for _, key := range []string{"a", "b", "c"} {
		mustWrite(t, s, key, []byte(key))
	}

	if err := s.RemoveMany([]string{"a", "c", "missing"}); err != nil {
		t.Fatalf("Unexpected error during RemoveMany: %v", err)
	}

	if keys := s.Keys(); !equalStrings(keys, []string{"b"}) {
		t.Errorf("Expected only key b to remain, got %v", keys)
	}

	if err := s.RemoveMany(nil); err != nil {
		t.Errorf("RemoveMany with no keys should succeed, got %v", err)
	}
}

func testRemoveAllThenWrite(t *testing.T, s store.IStore) {
	for i := 0; i < 10; i++ {
		mustWrite(t, s, fmt.Sprintf("key-%d", i), []byte("value"))
	}

	if err := s.RemoveAll(); err != nil {
		t.Fatalf("Unexpected error during RemoveAll: %v", err)
	}
	if count := s.Count(); count != 0 {
		t.Errorf("Expected empty store after RemoveAll, got %d keys", count)
	}

	mustWrite(t, s, "K", []byte("P"))

	if value, ok := s.Read("K"); !ok || string(value) != "P" {
		t.Errorf("Expected P for key K, got %q (ok=%v)", value, ok)
	}
	if keys := s.Keys(); !equalStrings(keys, []string{"K"}) {
		t.Errorf("Expected keys to be exactly [K], got %v", keys)
	}

	// on an empty store
	if err := s.RemoveAll(); err != nil {
		t.Fatalf("Unexpected error during RemoveAll: %v", err)
	}
	if err := s.RemoveAll(); err != nil {
		t.Errorf("RemoveAll on an empty store should succeed, got %v", err)
	}
}

func testQueries(t *testing.T, s store.IStore) {
	if s.Has("key") {
		t.Errorf("Has should be false on an empty store")
	}
	if count := s.Count(); count != 0 {
		t.Errorf("Expected count 0, got %d", count)
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Errorf("Expected no keys, got %v", keys)
	}

	mustWrite(t, s, "x", []byte("1"))
	mustWrite(t, s, "y", []byte("2"))
	mustWrite(t, s, "x", []byte("3"))

	if !s.Has("x") || !s.Has("y") || s.Has("z") {
		t.Errorf("Unexpected Has results: x=%v y=%v z=%v", s.Has("x"), s.Has("y"), s.Has("z"))
	}
	if count := s.Count(); count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}

	keys := s.Keys()
	sort.Strings(keys)
	if !equalStrings(keys, []string{"x", "y"}) {
		t.Errorf("Expected keys [x y], got %v", keys)
	}
}

func testTimestamps(t *testing.T, s store.IStore) {
	if _, ok := s.CreatedAt("missing"); ok {
		t.Errorf("CreatedAt should be absent for a missing key")
	}
	if _, ok := s.UpdatedAt("missing"); ok {
		t.Errorf("UpdatedAt should be absent for a missing key")
	}

	mustWrite(t, s, "ts", []byte("v1"))

	created, ok := s.CreatedAt("ts")
	if !ok {
		t.Skip("store does not track timestamps")
	}
	updated, ok := s.UpdatedAt("ts")
	if !ok {
		t.Fatalf("Expected UpdatedAt for a written key")
	}
	if updated.Before(created) {
		t.Errorf("UpdatedAt %v is before CreatedAt %v", updated, created)
	}

	mustWrite(t, s, "ts", []byte("v2"))

	created2, _ := s.CreatedAt("ts")
	updated2, _ := s.UpdatedAt("ts")
	if !created2.Equal(created) {
		t.Errorf("CreatedAt changed on overwrite: %v -> %v", created, created2)
	}
	if updated2.Before(updated) {
		t.Errorf("UpdatedAt went backwards on overwrite: %v -> %v", updated, updated2)
	}
}

func testKeyRoundTrip(t *testing.T, s store.IStore) {
	keys := []string{
		"simple",
		"with space",
		"slash/and?query=1&x=y",
		"percent%20encoded",
		"comma,dot.paren(x)",
		"unicode-ключ-🔑",
	}

	for i, key := range keys {
		mustWrite(t, s, key, []byte(fmt.Sprintf("v%d", i)))
	}

	for i, key := range keys {
		value, ok := s.Read(key)
		if !ok || string(value) != fmt.Sprintf("v%d", i) {
			t.Errorf("Key %q did not round trip: got %q (ok=%v)", key, value, ok)
		}
	}

	got := s.Keys()
	sort.Strings(got)
	want := append([]string(nil), keys...)
	sort.Strings(want)
	if !equalStrings(got, want) {
		t.Errorf("Keys did not round trip: got %q, want %q", got, want)
	}

	if err := s.RemoveMany(keys[1:3]); err != nil {
		t.Fatalf("Unexpected error during RemoveMany: %v", err)
	}
	if s.Has(keys[1]) || s.Has(keys[2]) {
		t.Errorf("Expected special keys to be removable")
	}
}

func testGetDBInfo(t *testing.T, s store.IStore) {
	mustWrite(t, s, "info", []byte("value"))

	if _, err := s.GetDBInfo(); err != nil {
		t.Errorf("Unexpected error during GetDBInfo: %v", err)
	}
}
