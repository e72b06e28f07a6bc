package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple    Implementation = "maple"
	ImplRedis    Implementation = "redis"
	ImplPostgres Implementation = "postgres"
	ImplREST     Implementation = "rest"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet        Feature = 1 << iota // Support for Set operations
	FeatureGet                            // Support for Get operations
	FeatureDelete                         // Support for Delete operations
	FeatureDeleteAll                      // Support for DeleteAll operations
	FeatureHas                            // Support for Has operations
	FeatureRange                          // Support for Range and Count operations
	FeatureTimestamps                     // Support for Timestamps operations
	FeatureSave                           // Support for Save operations
	FeatureLoad                           // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureDeleteAll:
		return "DeleteAll"
	case FeatureHas:
		return "Has"
	case FeatureRange:
		return "Range"
	case FeatureTimestamps:
		return "Timestamps"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	KeyCount          int            `json:"key_count"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations.
// It provides methods for basic operations like Set, Get, Delete, enumeration and various utility functions.
// Any implementation of this interface must manage keys in a consistent way.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// If the key already exists, the old value should be overwritten (last write wins).
	// The writeIndex parameter is used as a logical timestamp for the entry, writes with a
	// lower index than the stored entry are ignored.
	// The timestamp parameter is the wall clock time of the write in unix nanoseconds. It is
	// recorded as updated-at time and, if the key did not exist before, as created-at time.
	Set(key string, value []byte, writeIndex uint64, timestamp int64)

	// Delete removes an entry with the specified key.
	// Deleting a key that does not exist is a no-op.
	Delete(key string, writeIndex uint64)

	// DeleteAll removes all entries from the database.
	DeleteAll(writeIndex uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned value must be a copy that the caller is free to modify.
	Get(key string) (value []byte, loaded bool)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool)

	// Timestamps returns the created-at and updated-at time (unix nanoseconds) of a key.
	Timestamps(key string) (createdAt, updatedAt int64, loaded bool)

	// Range calls fn for every entry in the database until fn returns false.
	// The order of iteration is not specified. Values passed to fn are copies.
	Range(fn func(key string, value []byte) bool)

	// Count returns the number of entries in the database.
	Count() (count int)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Returns true if the feature is supported, false otherwise.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database .
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
