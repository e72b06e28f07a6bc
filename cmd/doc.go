// Package cmd implements the command-line interface of sKV. It provides a
// hierarchical command structure for running the server and for talking to
// it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (set, get, mset, keys, info, perf, ...)
//   - serve: Starts the server with lstore, dstore and sstore shards
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable SKV_<FLAG> or in a .env file.
// See skv -help for a list of all commands.
package cmd
