// Package server implements the RPC server of sKV. The server creates the
// configured shards and dispatches every request to the store of its shard.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a store.IStore.
//
//   - NewIStoreServerAdapter: Adapter translating RPC messages to store.IStore calls.
//     A batch request is a single WriteMany or RemoveMany call on the store.
//
//   - NewRPCServer: Creates a server with the given transport and serializer.
//
//   - NewSyncRemote and NewSyncOptions: Build the remote store and the sync store
//     options of a sync shard from common.SyncConfig.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalIStore},
//	    {ShardID: 200, Type: common.ShardTypeSyncIStore},
//	  },
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	  Sync: common.SyncConfig{
//	    Remote:    common.SyncRemoteRedis,
//	    RedisAddr: "localhost:6379",
//	    Interval:  10 * time.Second,
//	    Retry:     common.SyncRetryFixed,
//	  },
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// The server supports three types of shards, which can be mixed within a single server:
//
//   - ShardTypeLocalIStore (lstore): An in memory store on this node.
//
//   - ShardTypeRaftIStore (dstore): A store replicated with RAFT across the cluster.
//     The RAFT configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID, and ClusterMembers) must be set.
//
//   - ShardTypeSyncIStore (sstore): An in memory store whose mutations are replicated
//     asynchronously to the remote described by ServerConfig.Sync. Every sync shard
//     uses its own namespace on the remote.
//
// If RestEndpoint is set, every shard is also served as REST table named by its shard id.
//
// Shutdown flushes the sync shards one last time, closes their journals and remotes
// and stops the RAFT node host.
package server
