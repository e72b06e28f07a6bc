// Package db provides a standardized interface for key-value database implementations.
// It defines the KVDB interface that the local store of sKV is built on, allowing for
// consistent interaction with various database backends while abstracting implementation details.
//
// The package focuses on:
//   - A unified interface for key-value operations including key enumeration
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//   - Metadata reporting
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for basic operations (Set, Get, Has, Delete, DeleteAll),
//     enumeration (Range, Count), provenance metadata (Timestamps),
//     metadata retrieval (GetInfo) and persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. This allows clients to
//     discover supported operations at runtime.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for different database backends (currently "maple").
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on database state, including size statistics, implementation type,
//     and implementation-specific metadata.
//
// Note on Write Indices and Timestamps:
//   - Every write operation carries a write-index, a logical timestamp. Implementations must
//     ignore a Set whose write-index is lower than the index of the stored entry, so that
//     replayed or reordered writes can not overwrite newer data.
//   - Set additionally carries a wall clock timestamp (unix nanoseconds). The timestamp is
//     supplied by the caller and not read from the clock by the database itself. This keeps
//     implementations deterministic, which is required when the same commands are applied
//     on several replicas (see the dstore package).
//   - Monotonicity Guarantee: All implementations must ensure that the write-index only increases
//     monotonically. Attempts to set a write-index lower than the current one must be ignored.
//
// Related Packages:
//
// The engines/maple package (github.com/ValentinKolb/sKV/lib/db/engines/maple) provides a
// sharded in-memory implementation of the KVDB interface.
//
// The testing package (github.com/ValentinKolb/sKV/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
