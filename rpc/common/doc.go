// Package common provides the data structures and utilities shared by the
// RPC client, the RPC server and the command line interface of sKV.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. One message type
//     exists for every store.IStore method, key-value pairs travel as the parallel
//     Keys and Values slices. Factory methods create the request and response messages.
//
//   - ServerConfig: Configuration of a server node: served shards (lstore, dstore,
//     sstore), RAFT parameters for dstore shards, endpoints and logging.
//     Provides utilities for converting to Dragonboat-specific configurations.
//
//   - SyncConfig: The remote that sstore shards are mirrored to (rpc, redis,
//     postgres or rest), the sync interval, the retry policy and the journal directory.
//
//   - ClientConfig: Configuration for RPC clients, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
