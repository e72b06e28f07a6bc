// Package store provides the high-level interface for key-value storage operations
// of sKV together with its unified error handling.
// It serves as an abstraction layer over the lower-level db.KVDB implementations and
// over remote backends.
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for interacting with
//     a key-value store. Mutations return an error, reads never do: a failing read
//     degrades to absence (nil, false, 0 or an empty slice) and the cause is available
//     through IDiagnostics.LastError on stores that talk to a remote.
//
//   - Error System: Error carries a RetCode and a message. The code survives the RPC
//     layer, so a client can tell an unavailable remote from an invalid request.
//
//   - ErrorRecorder: Keeps the last error of a store for IDiagnostics.
//
//   - DBFactory: A function type that abstracts the creation of underlying db.KVDB
//     instances.
//
// Implementations:
//
//	- lstore: Directly uses a db.KVDB instance, for single-node shards.
//	  Available in the "github.com/ValentinKolb/sKV/lib/store/lstore" package.
//
//	- dstore: Replicates every mutation with the Dragonboat RAFT library.
//	  Available in the "github.com/ValentinKolb/sKV/lib/store/dstore" package.
//
//	- syncstore: Serves reads from a local store and mirrors mutations asynchronously
//	  to a remote store, retrying until they succeed.
//	  Available in the "github.com/ValentinKolb/sKV/lib/store/syncstore" package.
//
//	- rstore, pgstore, reststore: Remote stores on redis, postgres (gorm) and a REST
//	  table API. They are used as remotes of the sync store.
//
// The oplog package records mutations for replay, the testing package holds the
// conformance suite every implementation runs.
package store
