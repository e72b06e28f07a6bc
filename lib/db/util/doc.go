// Package util provides utility components for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - statistics: Helpers for analyzing value sizes and shard distribution, used by GetInfo
//   - functions: Seeded hash functions and other utility functions
package util
