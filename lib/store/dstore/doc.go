// Package dstore implements store.IStore on top of the Dragonboat RAFT library.
// A dstore shard is replicated to every member of the cluster, so it can serve as the
// remote of a sync store or as a shard of its own (shard type "dstore" of the server).
//
// Components:
//
//   - storeImpl (NewDistributedStore): serializes every mutation into an oplog.Op and
//     proposes it with SyncPropose. ErrSystemBusy is retried a few times, all other
//     failures are returned. Reads use SyncRead (linearizable), GetDBInfo uses StaleRead.
//     A failed read is reported as absence and kept as last error (store.IDiagnostics).
//
//   - KVStateMachine (CreateStateMaschineFactory): the IConcurrentStateMachine holding the
//     db.KVDB of a replica. Update decodes the op of every entry and applies it with the
//     raft log index as write index. Entries that do not decode are answered with an error
//     result and skipped, they never stop the shard.
//
//   - internal: the typed queries answered by Lookup and the db.Feature each op needs.
//
// Write index and timestamps:
//
//	The raft log index is the write index of an op, a batch op is one log entry so all its
//	pairs share one index. Created-at and updated-at come from the op timestamp set by the
//	proposing node, which keeps the replicas byte-identical.
//
// Snapshots:
//
//	SaveSnapshot streams db.KVDB.Save without pausing the shard (fuzzy snapshot),
//	RecoverFromSnapshot restores with Load before the remaining log entries are applied.
//
// Example:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	err = nh.StartConcurrentReplica(members, false, dstore.CreateStateMaschineFactory(dbFactory), shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// A shard only accepts writes while a majority of its replicas is reachable.
package dstore
