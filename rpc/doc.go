// Package rpc is the communication layer of sKV. It makes the stores of a
// server reachable for clients and for other sKV nodes, which use them as the
// remote of their sync shards.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions and the HTTP implementation.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON,
//     GOB, Msgpack, CBOR) for converting between Message objects and byte arrays.
//
//   - client: An RPC client implementing store.IStore, usable as application client
//     and as remote of a sync store.
//
//   - server: The RPC server that creates the configured shards and dispatches
//     incoming requests to their stores.
package rpc
