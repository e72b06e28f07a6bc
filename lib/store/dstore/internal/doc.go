// Package internal provides the query structures and the command helpers for the
// dstore package.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Commands: Write operations are serialized oplog.Op values that are proposed to the RAFT
//     cluster and applied by the state machine. RequiredFeature maps an op type to the
//     db.Feature the database needs to apply it, ResultData builds the message stored in the
//     result of a raft entry.
//
//   - Query System: Defines read operations (Get, GetMany, Has, Range, Keys, Count, Timestamps,
//     GetDBInfo) that retrieve data from the database without modifying its state. Queries are
//     executed locally on the statemachine and therefore do not require serialization.
//
// Query Format:
//
//	Queries use a simple structure as they are not persisted in the RAFT log:
//
//	- Type: The query operation to perform
//	- Key: The key to query (empty for operations like Count or GetDBInfo)
//	- Keys: The keys to query for GetMany
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization. However, this is not
//	typically an issue as the RAFT protocol ensures sequential processing of
//	commands on the state machine.
package internal
