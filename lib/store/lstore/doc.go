// Package lstore implements a local, in-memory, single-node key-value store based on the
// store.IStore interface. It provides a thin wrapper around any db.KVDB
// implementation with automatic write index management. It is the local half of a
// sync store (see the syncstore package).
//
// Implementation Details:
//
//   - Write Index Management: The store maintains an atomic counter that increments
//     with each mutating operation. Batch operations (WriteMany, RemoveMany) use a single
//     index for all of their keys.
//
//   - Timestamps: Writes pass the current wall clock time to the db, which records
//     the created-at and updated-at time of each key.
//
//   - Feature Detection: Before executing operations, the store checks if the underlying
//     db.KVDB implementation supports the requested feature through the SupportsFeature
//     method. Unsupported mutating operations return store.RetCUnsupportedOperation,
//     unsupported reads degrade to an empty result.
//
// Thread Safety:
//
//	All operations in the local store are thread-safe. The underlying db.KVDB implementation
//	is expected to provide its own thread safety guarantees for the actual storage operations.
//
// Usage Example:
//
//	factory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//
//	err := s.Write("session:123", sessionData)
//	value, ok := s.Read("session:123")
package lstore
