package internal

import (
	"github.com/ValentinKolb/sKV/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (value with metadata)
// --------------------------------------------------------------------------

// Entry stores a value together with its provenance metadata
type Entry struct {
	Value     []byte // Stored data
	CreatedAt int64  // Unix nanoseconds of the first write of the key
	UpdatedAt int64  // Unix nanoseconds of the last write of the key
	Index     uint64 // Write index of the last write of the key
}

// Clone returns a deep copy of the entry
func (e Entry) Clone() Entry {
	value := make([]byte, len(e.Value))
	copy(value, e.Value)
	e.Value = value
	return e
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry]
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key string, seed uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := util.HashString(key, seed) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
