// Package transport defines the interfaces for RPC communication in sKV.
// Transports move opaque, already serialized messages between clients and
// servers and route them by shard id.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// The only implementation is the HTTP transport in the http sub package.
package transport
