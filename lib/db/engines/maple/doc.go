// Package maple implements a sharded in-memory key-value database (KVDB).
// It provides a complete implementation of the db.KVDB interface and is the
// default engine behind the local store of sKV.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages shards
//     and provides the public API for key-value operations. It maintains a
//     monotonically increasing write index, but does not generate write indices itself.
//     The caller is responsible for that (e.g. an atomic counter in lstore or the raft
//     log index in dstore).
//
//   - Shard: A partition of the database that manages a subset of the key space.
//     Each shard is a concurrent xsync.MapOf keyed by the original string key, so
//     the database can enumerate its keys without a separate index.
//
//   - Entry: The stored value plus its metadata (created-at and updated-at time in
//     unix nanoseconds and the write index of the last write).
//
// Internal Mechanisms:
//
//   - Sharding Strategy: The shard of a key is selected by hashing the key with a
//     database-specific seed (FNV-1a) and right-shifting the hash by 7 bits to use
//     the higher-quality bits.
//
//   - Stale Write Prevention: A Set or Delete is only applied if its write index is
//     greater than or equal to the stored index of the entry. Out-of-order or
//     replayed operations can not overwrite newer data.
//
//   - Timestamps: Set receives the wall clock time from the caller. The created-at
//     time of an entry is kept across overwrites, the updated-at time is replaced.
//
// Persistence:
//
// Save writes a fuzzy snapshot (entries written concurrently may or may not be
// included) in a little-endian binary format:
//
//	"MAPLEDB\x00" | version u8 | seed u64 | write index u64 | count u64 |
//	count x ( keyLen u32 | key | index u64 | createdAt i64 | updatedAt i64 | valueLen u32 | value )
//
// Load replaces the complete content of the database with the snapshot.
package maple
