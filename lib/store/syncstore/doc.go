// Package syncstore implements a store.IStore that combines a local and a remote store:
// the local store is always available and authoritative for reads, the remote store is an
// eventually consistent mirror.
//
// Write Path:
//
//	Every mutating call (Write, WriteMany, Remove, RemoveMany, RemoveAll) is applied to the
//	local store first. Only if that succeeds, an oplog.Op describing the mutation is appended
//	to the pending queue and the call returns. The remote store is never awaited. If the local
//	store fails, the error is returned and nothing is queued. Mutating calls are serialized,
//	so the queue order equals the order in which mutations were applied locally.
//
// Read Path:
//
//	All reads and queries are served by the local store only.
//
// Reconciliation Loop:
//
//	A background goroutine runs a reconciliation pass right after New and then periodically
//	(every 10s by default). A pass pops ops from the head of the queue and replays them against
//	the remote store with oplog.Op.Apply. A batch op is replayed as a single WriteMany or
//	RemoveMany call. After a successful replay the op is discarded and the pass continues.
//	After a failed replay the RetryPolicy decides:
//
//	- Requeue (default): the op goes back to the head of the queue and the pass ends. No later
//	  op is attempted before it succeeds (head-of-line blocking).
//	- Drop: the op is discarded, handed to Options.DeadLetter, and the pass continues.
//	- Defer: the op moves to the tail of the queue and the pass continues.
//
//	Replication failures are never returned to the caller of the original mutation. They are
//	logged, counted in the metrics and available through LastError and Stats.
//
// Lifecycle:
//
//	Close stops the loop and waits for it to exit. Flush runs a pass on demand, e.g. in tests
//	or before a planned shutdown.
//
// Durability:
//
//	By default the pending queue only lives in memory and pending ops are lost when the process
//	exits. With a Journal (see FileJournal) every queued op is persisted and recovered by New.
//
// Metrics:
//
//	Every store registers VictoriaMetrics counters (skv_sync_replayed_total, skv_sync_failures_total,
//	skv_sync_dropped_total, skv_sync_enqueued_total) and a skv_sync_pending gauge labeled with
//	the store name. WritePrometheus writes them for all open stores.
package syncstore
