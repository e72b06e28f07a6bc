// Package http implements the HTTP transport for RPC communication in sKV.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Requests are sent as
//     POST /{shardId} with the serialized message as body. Servers are selected
//     round-robin and a failed request is retried on the next server.
//
//   - httpServerTransport: Implements IRPCServerTransport with a chi router. Next to
//     the RPC route it serves GET /metrics (Prometheus text format with process,
//     rpc and sync store metrics) and GET /health.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. It uses
//	atomic operations for the round-robin counter when selecting server endpoints.
package http
