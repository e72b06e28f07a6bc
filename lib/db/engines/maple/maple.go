package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/sKV/lib/db/util"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Database version (4 = string keys + timestamps)
	maxKeyLen    = 1 << 16       // Upper bound for a key read from a snapshot
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for the shard hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	newDB := &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
		shards:    newShards(opts.NumShards),
	}
	newDB.currIndex.Store(0)

	return newDB
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard()
	}
	return shards
}

func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(key, maple.seed, maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key, value and write index.
// If the key already exists, the old value is overwritten and the created-at time is kept.
// Writes with a lower write index than the stored entry are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, writeIndex uint64, timestamp int64) {
	maple.SetWriteIdx(writeIndex)

	// Copy value to prevent memory corruption
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	maple.shardFor(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		// stale writes are ignored
		if loaded && writeIndex < old.Index {
			return old, false
		}

		createdAt := timestamp
		if loaded {
			createdAt = old.CreatedAt
		}

		return internal.Entry{
			Value:     valueCopy,
			CreatedAt: createdAt,
			UpdatedAt: timestamp,
			Index:     writeIndex,
		}, false
	})
}

// Delete removes an entry with the specified key. This change is immediate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, writeIndex uint64) {
	maple.SetWriteIdx(writeIndex)

	maple.shardFor(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			return old, true // set delete to true because else the value will be created
		}
		if writeIndex < old.Index {
			return old, false
		}
		return old, true
	})
}

// DeleteAll removes every entry that was written at or before the given write index.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Writes that run concurrently with DeleteAll and carry a higher write index survive.
func (maple *mapleImpl) DeleteAll(writeIndex uint64) {
	maple.SetWriteIdx(writeIndex)

	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, _ internal.Entry) bool {
			shard.Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
				if !loaded {
					return old, true
				}
				return old, old.Index <= writeIndex
			})
			return true
		})
	}
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	e, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false
	}
	return e.Clone().Value, true
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) bool {
	_, ok := maple.shardFor(key).Data.Load(key)
	return ok
}

// Timestamps returns the created-at and updated-at time of a key.
func (maple *mapleImpl) Timestamps(key string) (int64, int64, bool) {
	e, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return 0, 0, false
	}
	return e.CreatedAt, e.UpdatedAt, true
}

// Range calls fn for every entry until fn returns false.
// The iteration is a fuzzy snapshot: entries written during Range may or may not be visited.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Range(fn func(key string, value []byte) bool) {
	for _, shard := range maple.shards {
		cont := true
		shard.Data.Range(func(key string, e internal.Entry) bool {
			cont = fn(key, e.Clone().Value)
			return cont
		})
		if !cont {
			return
		}
	}
}

// Count returns the number of entries in the database.
func (maple *mapleImpl) Count() int {
	count := 0
	for _, shard := range maple.shards {
		count += shard.Data.Size()
	}
	return count
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer
// Concurrent reading and writing is allowed during Save operation
//
// Thread-safety: This function allows concurrent operations with all other functions
// except Load. It takes snapshots of the data without blocking modifications.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entryToSave struct {
		key   string
		entry internal.Entry
	}

	var dataEntries []entryToSave
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			dataEntries = append(dataEntries, entryToSave{key, entry.Clone()})
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, maple.seed); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, maple.currIndex.Load()); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(dataEntries))); err != nil {
		return err
	}

	// Write data entries
	for _, item := range dataEntries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.CreatedAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.UpdatedAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.entry.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.entry.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load restores a database from the reader. All existing entries are replaced.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var seed, writeIdx, dataCount uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}
	if err := binary.Read(br, binary.LittleEndian, &writeIdx); err != nil {
		return err
	}
	if err := binary.Read(br, binary.LittleEndian, &dataCount); err != nil {
		return err
	}

	shards := newShards(maple.numShards)
	maxIndex := writeIdx

	for i := uint64(0); i < dataCount; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		if keyLen > maxKeyLen {
			return fmt.Errorf("invalid key length %d in entry %d", keyLen, i)
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(br, keyBytes); err != nil {
			return err
		}

		var entry internal.Entry
		if err := binary.Read(br, binary.LittleEndian, &entry.Index); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &entry.CreatedAt); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &entry.UpdatedAt); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		entry.Value = make([]byte, valueLen)
		if _, err := io.ReadFull(br, entry.Value); err != nil {
			return err
		}

		if entry.Index > maxIndex {
			maxIndex = entry.Index
		}

		key := string(keyBytes)
		internal.GetShard(key, seed, shards).Data.Store(key, entry)
	}

	maple.shards = shards
	maple.seed = seed
	maple.currIndex.Store(0)
	maple.SetWriteIdx(maxIndex)

	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// supportedFeatures is the feature set of every maple instance
const supportedFeatures = db.FeatureSet |
	db.FeatureGet |
	db.FeatureDelete |
	db.FeatureDeleteAll |
	db.FeatureHas |
	db.FeatureRange |
	db.FeatureTimestamps |
	db.FeatureSave |
	db.FeatureLoad

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		sizeBytes  int
		valueSizes []float64
		shardSizes = make([]float64, len(maple.shards))
	)

	// concurrently collect sizes from all shards
	wg.Add(len(maple.shards))
	for shardIndex, shard := range maple.shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()

			var (
				bytes int
				sizes []float64
			)
			s.Data.Range(func(key string, entry internal.Entry) bool {
				bytes += len(key) + len(entry.Value) + 24 // index + timestamps
				sizes = append(sizes, float64(len(entry.Value)))
				return true
			})

			mu.Lock()
			defer mu.Unlock()
			sizeBytes += bytes
			valueSizes = append(valueSizes, sizes...)
			shardSizes[i] = float64(len(sizes))
		}(shardIndex, shard)
	}
	wg.Wait()

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		ValueSizes        util.Stats             `json:"value_sizes"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		ValueSizes:        util.NewStats(valueSizes),
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		KeyCount:  len(valueSizes),
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureHas,
			db.FeatureDelete, db.FeatureDeleteAll,
			db.FeatureRange, db.FeatureTimestamps,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

// Close is a no-op, maple holds no background resources
func (maple *mapleImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}
