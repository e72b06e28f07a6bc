package dstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/dstore/internal"
	"github.com/ValentinKolb/sKV/lib/store/oplog"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the distributed store.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	lastErr store.ErrorRecorder
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The returned store also implements store.IDiagnostics.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes a serialized op via SyncPropose.
// It returns a *store.Error if an error occurs, or nil on success.
func (s *storeImpl) write(op oplog.Op) error {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, op.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return store.NewError(store.RetCUnavailable, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return store.NewError(store.RetCUnavailable, "timeout")
}

// read is a generic helper function queries the statemachine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragenboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// Is the read operation fails due to a system busy error, the function retries up to 5 times.
//
// It returns the response of type R and a error (nil on success).
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the standmaschine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var rse *store.Error
			if errors.As(err, &rse) {
				return zero, rse
			}
			return zero, store.NewError(store.RetCUnavailable, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCUnavailable, "timeout")
}

// query runs read and records a failure, since reads report failures as absence
func query[R any](s *storeImpl, q internal.Query) (R, bool) {
	res, err := read[R](s, q, false)
	if err != nil {
		log.Warningf("%s query on shard %d failed: %v", q.Type, s.shardID, err)
		s.lastErr.Record(err)
		return res, false
	}
	return res, true
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Write(key string, value []byte) error {
	return s.write(oplog.NewWrite(key, value))
}

func (s *storeImpl) WriteMany(pairs []store.KeyValue) error {
	return s.write(oplog.NewWriteMany(pairs))
}

func (s *storeImpl) Read(key string) ([]byte, bool) {
	res, ok := query[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	})
	if !ok {
		return nil, false
	}
	return res.Value, res.Ok
}

func (s *storeImpl) ReadMany(keys []string) [][]byte {
	pairs := s.ReadManyWithKeys(keys)
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	return values
}

func (s *storeImpl) ReadManyWithKeys(keys []string) []store.KeyValue {
	pairs, ok := query[[]store.KeyValue](s, internal.Query{
		Type: internal.QueryTGetMany,
		Keys: keys,
	})
	if !ok {
		return []store.KeyValue{}
	}
	return pairs
}

func (s *storeImpl) ReadAll() [][]byte {
	pairs := s.ReadAllWithKeys()
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	return values
}

func (s *storeImpl) ReadAllWithKeys() []store.KeyValue {
	pairs, ok := query[[]store.KeyValue](s, internal.Query{Type: internal.QueryTRange})
	if !ok {
		return []store.KeyValue{}
	}
	return pairs
}

func (s *storeImpl) Remove(key string) error {
	return s.write(oplog.NewRemove(key))
}

func (s *storeImpl) RemoveMany(keys []string) error {
	return s.write(oplog.NewRemoveMany(keys))
}

func (s *storeImpl) RemoveAll() error {
	return s.write(oplog.NewRemoveAll())
}

func (s *storeImpl) Has(key string) bool {
	ok, _ := query[bool](s, internal.Query{
		Type: internal.QueryTHas,
		Key:  key,
	})
	return ok
}

func (s *storeImpl) Count() int {
	count, _ := query[int](s, internal.Query{Type: internal.QueryTCount})
	return count
}

func (s *storeImpl) Keys() []string {
	keys, ok := query[[]string](s, internal.Query{Type: internal.QueryTKeys})
	if !ok {
		return []string{}
	}
	return keys
}

func (s *storeImpl) timestamps(key string) (internal.QueryResult, bool) {
	res, ok := query[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTTimestamps,
		Key:  key,
	})
	return res, ok && res.Ok
}

func (s *storeImpl) CreatedAt(key string) (time.Time, bool) {
	res, ok := s.timestamps(key)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, res.CreatedAt), true
}

func (s *storeImpl) UpdatedAt(key string) (time.Time, bool) {
	res, ok := s.timestamps(key)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, res.UpdatedAt), true
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}

// LastError returns the error of the last failed read or query.
func (s *storeImpl) LastError() error {
	return s.lastErr.LastError()
}
