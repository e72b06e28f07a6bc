package testing

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("DeleteAll", func(t *testing.T) {
			testDeleteAll(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("Timestamps", func(t *testing.T) {
			testTimestamps(t, factory())
		})

		t.Run("Range&Count", func(t *testing.T) {
			testRangeCount(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 1, 1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 2, 2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// mutating the input after Set must not change the stored value
	input := []byte("input-value")
	database.Set("input-key", input, 3, 3)
	input[0] = 'X'
	if stored, _ := database.Get("input-key"); !bytes.Equal(stored, []byte("input-value")) {
		t.Errorf("Set should copy the value, got %s", stored)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("delete-key", []byte("value"), 1, 1)
	database.Delete("delete-key", 2)

	if _, exists := database.Get("delete-key"); exists {
		t.Errorf("Key should not exist after Delete")
	}

	// deleting a missing key is a no-op
	database.Delete("missing-key", 3)
	if _, exists := database.Get("missing-key"); exists {
		t.Errorf("Delete of a missing key must not create it")
	}

	// the key can be written again after a delete
	database.Set("delete-key", []byte("again"), 4, 4)
	if result, exists := database.Get("delete-key"); !exists || !bytes.Equal(result, []byte("again")) {
		t.Errorf("Expected key to be writable after Delete, got %s (exists=%v)", result, exists)
	}
}

func testDeleteAll(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDeleteAll|db.FeatureRange)

	for i := 0; i < 100; i++ {
		database.Set(fmt.Sprintf("key-%d", i), []byte("value"), uint64(i+1), int64(i+1))
	}

	database.DeleteAll(101)

	if count := database.Count(); count != 0 {
		t.Errorf("Expected empty database after DeleteAll, got %d entries", count)
	}
	if _, exists := database.Get("key-1"); exists {
		t.Errorf("Expected key-1 to be removed by DeleteAll")
	}

	database.Set("after", []byte("value"), 102, 102)
	if count := database.Count(); count != 1 {
		t.Errorf("Expected 1 entry after writing post DeleteAll, got %d", count)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas|db.FeatureDelete)

	if database.Has("has-key") {
		t.Errorf("Has should return false for missing keys")
	}

	database.Set("has-key", []byte("value"), 1, 1)
	if !database.Has("has-key") {
		t.Errorf("Has should return true after Set")
	}

	database.Set("has-empty", nil, 2, 2)
	if !database.Has("has-empty") {
		t.Errorf("Has should return true for keys with an empty value")
	}

	database.Delete("has-key", 3)
	if database.Has("has-key") {
		t.Errorf("Has should return false after Delete")
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("stale-key", []byte("new"), 10, 10)
	database.Set("stale-key", []byte("old"), 5, 5)

	if result, _ := database.Get("stale-key"); !bytes.Equal(result, []byte("new")) {
		t.Errorf("Stale write should be ignored, got %s", result)
	}

	database.Delete("stale-key", 7)
	if !database.Has("stale-key") {
		t.Errorf("Stale delete should be ignored")
	}

	if idx := database.WriteIdx(); idx != 10 {
		t.Errorf("Expected write index 10, got %d", idx)
	}

	database.SetWriteIdx(3)
	if idx := database.WriteIdx(); idx != 10 {
		t.Errorf("Write index must not decrease, got %d", idx)
	}
}

func testTimestamps(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureTimestamps)

	if _, _, ok := database.Timestamps("ts-key"); ok {
		t.Errorf("Timestamps should report missing keys")
	}

	database.Set("ts-key", []byte("v1"), 1, 1000)
	created, updated, ok := database.Timestamps("ts-key")
	if !ok || created != 1000 || updated != 1000 {
		t.Errorf("Expected created=updated=1000, got created=%d updated=%d ok=%v", created, updated, ok)
	}

	database.Set("ts-key", []byte("v2"), 2, 2000)
	created, updated, ok = database.Timestamps("ts-key")
	if !ok || created != 1000 || updated != 2000 {
		t.Errorf("Expected created=1000 updated=2000, got created=%d updated=%d ok=%v", created, updated, ok)
	}
}

func testRangeCount(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureRange)

	if count := database.Count(); count != 0 {
		t.Errorf("Expected empty database, got %d entries", count)
	}

	expected := make(map[string]string)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("range-key-%d", i)
		value := fmt.Sprintf("range-value-%d", i)
		expected[key] = value
		database.Set(key, []byte(value), uint64(i+1), int64(i+1))
	}

	if count := database.Count(); count != len(expected) {
		t.Errorf("Expected %d entries, got %d", len(expected), count)
	}

	seen := make(map[string]string)
	database.Range(func(key string, value []byte) bool {
		seen[key] = string(value)
		return true
	})
	if len(seen) != len(expected) {
		t.Errorf("Range visited %d entries, expected %d", len(seen), len(expected))
	}
	for key, value := range expected {
		if seen[key] != value {
			t.Errorf("Range returned %q for key %s, expected %q", seen[key], key, value)
		}
	}

	// early stop
	visited := 0
	database.Range(func(string, []byte) bool {
		visited++
		return visited < 5
	})
	if visited != 5 {
		t.Errorf("Range should stop when fn returns false, visited %d", visited)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	originalKeys := make([]string, numEntries)
	originalValues := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		originalKeys[i] = key
		originalValues[i] = value

		database.Set(key, value, uint64(i+1), int64(i+1))
	}

	// entry that must be replaced by Load
	database2.Set("pre-existing", []byte("value"), 1, 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := originalKeys[i]
		expectedValue := originalValues[i]

		actualValue, exists := database2.Get(key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	if _, exists := database2.Get("pre-existing"); exists {
		t.Errorf("Load should replace existing entries")
	}

	if database2.WriteIdx() < uint64(numEntries) {
		t.Errorf("Expected write index >= %d after Load, got %d", numEntries, database2.WriteIdx())
	}

	if database2.SupportsFeature(db.FeatureTimestamps) {
		created, updated, ok := database2.Timestamps(originalKeys[10])
		if !ok || created != 11 || updated != 11 {
			t.Errorf("Timestamps not restored by Load: created=%d updated=%d ok=%v", created, updated, ok)
		}
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected Load to fail for invalid input")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	emptyKey := ""
	emptyKeyValue := []byte("value for empty key")

	database.Set(emptyKey, emptyKeyValue, 1, 1)

	result, exists := database.Get(emptyKey)
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	nilValueKey := "nil-value-key"
	database.Set(nilValueKey, nil, 2, 2)

	result, exists = database.Get(nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	largeKey := string(make([]byte, 1000))
	largeKeyValue := []byte("value for large key")

	database.Set(largeKey, largeKeyValue, 3, 3)

	result, exists = database.Get(largeKey)
	if !exists {
		t.Errorf("Large key not found after Set")
	} else if !bytes.Equal(result, largeKeyValue) {
		t.Errorf("Value mismatch for large key")
	}

	largeValueKey := "large-value-key"
	largeValue := make([]byte, 10*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}

	database.Set(largeValueKey, largeValue, 4, 4)

	result, exists = database.Get(largeValueKey)
	if !exists {
		t.Errorf("Key for large value not found after Set")
	} else if !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch (got %d bytes, expected %d)", len(result), len(largeValue))
	}

	unicodeKey := "schlüssel-🔑"
	database.Set(unicodeKey, []byte("wert"), 5, 5)
	if result, exists := database.Get(unicodeKey); !exists || string(result) != "wert" {
		t.Errorf("Unicode key not handled correctly, got %s (exists=%v)", result, exists)
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		value := []byte(fmt.Sprintf("value-%d", i))

		database.Set(key, value, uint64(i+1), int64(i+1))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists := database.Get(key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		key := fmt.Sprintf("%s%d", prefix, i)
		database.Delete(key, uint64(numKeys+i+1))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := database.Get(key)

		if i%2 == 0 && exists {
			t.Errorf("Key %s should be deleted", key)
		} else if i%2 == 1 && !exists {
			t.Errorf("Key %s should still exist", key)
		}
	}

	if database.SupportsFeature(db.FeatureRange) {
		var keys []string
		database.Range(func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
		sort.Strings(keys)
		if len(keys) != numKeys/2 {
			t.Errorf("Expected %d keys after deleting half, got %d", numKeys/2, len(keys))
		}
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "set"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "set" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
	}

	allKeys := make(map[string]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 8
	opsPerWorker := numOperations / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]
				idx := uint64(i + 1)

				switch op.op {
				case "set":
					database.Set(op.key, op.value, idx, int64(idx))
				case "get":
					database.Get(op.key)
				case "delete":
					database.Delete(op.key, idx)
				}
			}
		}(w)
	}
	wg.Wait()

	// after all writers finished the state must be stable
	snapshot := make(map[string][]byte)
	for key := range allKeys {
		if value, exists := database.Get(key); exists {
			snapshot[key] = value
		}
	}

	for key := range allKeys {
		value, exists := database.Get(key)
		expected, expectedExists := snapshot[key]

		if exists != expectedExists {
			t.Errorf("Consistency error: Key %s existence changed between reads", key)
			continue
		}
		if exists && !bytes.Equal(value, expected) {
			t.Errorf("Value mismatch for key %s between reads", key)
		}
	}

	if database.SupportsFeature(db.FeatureRange) && database.Count() != len(snapshot) {
		t.Errorf("Count %d does not match number of readable keys %d", database.Count(), len(snapshot))
	}
}
