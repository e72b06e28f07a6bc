package store

import (
	"fmt"
	"github.com/ValentinKolb/sKV/lib/db"
	"time"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// KeyValue is a single key with its payload.
type KeyValue struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// IStore is the generic interface for interacting with a key–value store.
//
// Mutating operations return an error (nil on success). Read and query operations never
// return an error: a failure is reported as absence (nil, false, 0 or an empty slice).
// Stores whose reads can fail implement IDiagnostics to expose the last of these failures.
type IStore interface {
	// Write inserts or updates a key–value pair (last write wins).
	Write(key string, value []byte) (err error)
	// WriteMany inserts or updates all pairs as one operation. The order of the pairs is preserved.
	WriteMany(pairs []KeyValue) (err error)

	// Read returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Read(key string) (value []byte, ok bool)
	// ReadMany returns the values of all found keys, missing keys are omitted.
	ReadMany(keys []string) (values [][]byte)
	// ReadManyWithKeys is like ReadMany but pairs each value with its key.
	ReadManyWithKeys(keys []string) (pairs []KeyValue)
	// ReadAll returns all values of the store.
	ReadAll() (values [][]byte)
	// ReadAllWithKeys returns all key–value pairs of the store.
	ReadAllWithKeys() (pairs []KeyValue)

	// Remove deletes a key. Removing a missing key is not an error.
	Remove(key string) (err error)
	// RemoveMany deletes all given keys as one operation.
	RemoveMany(keys []string) (err error)
	// RemoveAll deletes every key of the store.
	RemoveAll() (err error)

	// Has returns whether a key exists in the store.
	Has(key string) (ok bool)
	// Count returns the number of keys in the store.
	Count() (count int)
	// Keys returns all keys of the store in no particular order.
	Keys() (keys []string)
	// CreatedAt returns the time a key was first written (since it was last absent).
	CreatedAt(key string) (t time.Time, ok bool)
	// UpdatedAt returns the time a key was last written.
	UpdatedAt(key string) (t time.Time, ok bool)

	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// IDiagnostics is implemented by stores whose read operations can fail.
// LastError returns the error of the most recent failed read or query (nil if none failed yet).
type IDiagnostics interface {
	LastError() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new KVStoreError with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCUnavailable                         // 4: The backend of the store could not be reached.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}
