package syncstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/oplog"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("sync")

// ErrClosed is returned by mutating calls and Flush after Close.
var ErrClosed = errors.New("sync store is closed")

// DefaultInterval is the time between two reconciliation passes.
const DefaultInterval = 10 * time.Second

// Options configures a SyncStore.
type Options struct {
	// Name identifies the store in logs and metrics.
	Name string
	// Interval between reconciliation passes (used by the default retry policy).
	Interval time.Duration
	// RetryPolicy decides what happens after a failed replay (nil = FixedInterval{Interval}).
	RetryPolicy RetryPolicy
	// Journal persists the pending queue (nil = in memory only, pending ops are lost on exit).
	Journal Journal
	// DeadLetter is called with every op the retry policy drops.
	DeadLetter func(op oplog.Op, err error)
	// FlushOnClose runs a last reconciliation pass during Close.
	FlushOnClose bool
}

// DefaultOptions returns the default sync store options.
func DefaultOptions() *Options {
	return &Options{
		Name:     "sync",
		Interval: DefaultInterval,
	}
}

// SyncStore is a store.IStore that serves every read from a local store and applies
// every mutation to the local store first. Each successful local mutation is recorded
// as an op in the pending queue, which a background loop replays in order against the
// remote store.
type SyncStore struct {
	local  store.IStore
	remote store.IStore
	opts   Options
	policy RetryPolicy

	// writeMu serializes mutating calls so that the local apply order equals the queue order
	writeMu sync.Mutex
	queue   *queue

	// drainMu makes reconciliation passes mutually exclusive, fields below are guarded by it
	drainMu       sync.Mutex
	attempts      map[uuid.UUID]int
	failedPasses  int
	lastCleanPass time.Time
	released      bool // journal and metrics are released, no pass may run

	lastErr store.ErrorRecorder
	metrics *syncMetrics

	closed    atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{} // closed once Close released everything
	closeErr  error         // valid after done is closed
}

// New creates a sync store over the given local and remote store and starts the
// reconciliation loop. If a journal is configured, its pending ops are queued first.
func New(local, remote store.IStore, opts *Options) (*SyncStore, error) {
	if local == nil || remote == nil {
		return nil, store.NewError(store.RetCInvalidOperation, "sync store needs a local and a remote store")
	}

	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Name == "" {
		o.Name = "sync"
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}

	s := &SyncStore{
		local:    local,
		remote:   remote,
		opts:     o,
		policy:   o.RetryPolicy,
		queue:    newQueue(),
		attempts: make(map[uuid.UUID]int),
		done:     make(chan struct{}),
	}
	if s.policy == nil {
		s.policy = FixedInterval{Interval: o.Interval}
	}

	if o.Journal != nil {
		ops, err := o.Journal.Load()
		if err != nil {
			return nil, fmt.Errorf("load journal: %w", err)
		}
		for _, op := range ops {
			s.queue.PushBack(op)
		}
		if len(ops) > 0 {
			Logger.Infof("[%s] recovered %d pending ops from journal", o.Name, len(ops))
		}
	}

	s.metrics = newSyncMetrics(o.Name, s.queue.Len)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)

	return s, nil
}

// --------------------------------------------------------------------------
// Mutating Methods
// --------------------------------------------------------------------------

// mutate applies fn to the local store and, on success, enqueues the op created by newOp.
func (s *SyncStore) mutate(apply func(local store.IStore) error, newOp func() oplog.Op) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}

	if err := apply(s.local); err != nil {
		return err
	}

	s.enqueue(newOp())
	return nil
}

// enqueue journals op and appends it to the queue. Callers must hold writeMu.
func (s *SyncStore) enqueue(op oplog.Op) {
	// the local state already changed, so a journal failure does not fail the call
	s.journalAppend(op)
	s.queue.PushBack(op)
	s.metrics.markEnqueued()
}

func (s *SyncStore) Write(key string, value []byte) error {
	return s.mutate(
		func(local store.IStore) error { return local.Write(key, value) },
		func() oplog.Op { return oplog.NewWrite(key, value) },
	)
}

func (s *SyncStore) WriteMany(pairs []store.KeyValue) error {
	return s.mutate(
		func(local store.IStore) error { return local.WriteMany(pairs) },
		func() oplog.Op { return oplog.NewWriteMany(pairs) },
	)
}

func (s *SyncStore) Remove(key string) error {
	return s.mutate(
		func(local store.IStore) error { return local.Remove(key) },
		func() oplog.Op { return oplog.NewRemove(key) },
	)
}

func (s *SyncStore) RemoveMany(keys []string) error {
	return s.mutate(
		func(local store.IStore) error { return local.RemoveMany(keys) },
		func() oplog.Op { return oplog.NewRemoveMany(keys) },
	)
}

func (s *SyncStore) RemoveAll() error {
	return s.mutate(
		func(local store.IStore) error { return local.RemoveAll() },
		oplog.NewRemoveAll,
	)
}

// --------------------------------------------------------------------------
// Read Methods (local only)
// --------------------------------------------------------------------------

func (s *SyncStore) Read(key string) ([]byte, bool) {
	return s.local.Read(key)
}

func (s *SyncStore) ReadMany(keys []string) [][]byte {
	return s.local.ReadMany(keys)
}

func (s *SyncStore) ReadManyWithKeys(keys []string) []store.KeyValue {
	return s.local.ReadManyWithKeys(keys)
}

func (s *SyncStore) ReadAll() [][]byte {
	return s.local.ReadAll()
}

func (s *SyncStore) ReadAllWithKeys() []store.KeyValue {
	return s.local.ReadAllWithKeys()
}

func (s *SyncStore) Has(key string) bool {
	return s.local.Has(key)
}

func (s *SyncStore) Count() int {
	return s.local.Count()
}

func (s *SyncStore) Keys() []string {
	return s.local.Keys()
}

func (s *SyncStore) CreatedAt(key string) (time.Time, bool) {
	return s.local.CreatedAt(key)
}

func (s *SyncStore) UpdatedAt(key string) (time.Time, bool) {
	return s.local.UpdatedAt(key)
}

// GetDBInfo returns the info of the local store with the sync statistics added to the metadata.
func (s *SyncStore) GetDBInfo() (db.DatabaseInfo, error) {
	info, err := s.local.GetDBInfo()
	if err != nil {
		return info, err
	}

	info.Metadata = &struct {
		Local interface{} `json:"local"`
		Sync  Stats       `json:"sync"`
	}{
		Local: info.Metadata,
		Sync:  s.Stats(),
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Sync Specific Methods
// --------------------------------------------------------------------------

// Pending returns the number of ops that are not replicated yet.
func (s *SyncStore) Pending() int {
	return s.queue.Len()
}

// PendingOps returns copies of the ops that are not replicated yet, in replication order.
func (s *SyncStore) PendingOps() []oplog.Op {
	return s.queue.Snapshot()
}

// LastError returns the error of the last failed replay. It is reset by a pass that
// replicates the complete queue.
func (s *SyncStore) LastError() error {
	return s.lastErr.LastError()
}

// Stats returns a summary of the replication state.
func (s *SyncStore) Stats() Stats {
	stats := Stats{
		Name:    s.opts.Name,
		Pending: s.queue.Len(),
	}
	s.metrics.fill(&stats)

	if err := s.lastErr.LastError(); err != nil {
		stats.LastError = err.Error()
		stats.LastErrorAt, _ = s.lastErr.LastErrorAt()
	}

	s.drainMu.Lock()
	stats.FailedPasses = s.failedPasses
	stats.LastCleanPass = s.lastCleanPass
	s.drainMu.Unlock()

	return stats
}

// Flush runs a reconciliation pass now and returns the replay error that ended it (nil if
// the queue was drained). It blocks while another pass is running.
func (s *SyncStore) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.drain(ctx)
}

// Close stops the reconciliation loop and releases the journal and the metrics.
// With FlushOnClose a last pass is run first (bounded by ctx). Ops that are still
// pending are kept in the journal, if one is configured.
//
// The release waits for the loop and for a running Flush to finish their current replay.
// If ctx expires before that, Close returns the context error and the release completes
// in the background once the replay returns; a later Close waits for it again.
// Close is idempotent.
func (s *SyncStore) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		// no mutating call is in flight once closed is set under writeMu
		s.writeMu.Lock()
		s.closed.Store(true)
		s.writeMu.Unlock()

		s.cancel()

		flushCtx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			flushCtx, cancel = context.WithDeadline(flushCtx, deadline)
			go func() {
				<-s.done
				cancel()
			}()
		}
		go s.release(flushCtx)
	})

	select {
	case <-s.done:
		return s.closeErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for reconciliation loop: %w", ctx.Err())
	}
}

// release waits for the loop and any running pass, then closes journal and metrics.
func (s *SyncStore) release(ctx context.Context) {
	defer close(s.done)

	s.wg.Wait()

	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	if s.opts.FlushOnClose {
		if err := s.drainLocked(ctx); err != nil {
			Logger.Warningf("[%s] final flush incomplete, %d ops pending: %v", s.opts.Name, s.queue.Len(), err)
		}
	}

	if pending := s.queue.Len(); pending > 0 {
		Logger.Warningf("[%s] closing with %d unreplicated ops", s.opts.Name, pending)
	}

	s.released = true
	s.metrics.close()

	if s.opts.Journal != nil {
		s.closeErr = s.opts.Journal.Close()
	}
}
