// Package testing provides a standardised test suite for implementations of the
// store.IStore interface.
//
// Every store of sKV (local, sync, raft, redis, postgres, REST and the RPC client)
// runs the same suite, which checks the contract of the interface: last write wins,
// reads return copies, batch operations, idempotent removal and degraded reads.
//
// Example usage:
//
//	factory := func() store.IStore {
//		return lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
//	}
//	storetesting.RunIStoreTests(t, "LocalStore", factory)
package testing
