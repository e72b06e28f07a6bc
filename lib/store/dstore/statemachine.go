package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/dstore/internal"
	"github.com/ValentinKolb/sKV/lib/store/oplog"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMaschineFactory returns a function that can be used by dragenboat to create a new standmaschine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMaschineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

func (fsm *KVStateMachine) requireFeature(feature db.Feature, q internal.QueryType) error {
	if !fsm.database.SupportsFeature(feature) {
		return store.Errorf(store.RetCUnsupportedOperation, "%s operation is not supported", q)
	}
	return nil
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	// Handle different Query types
	switch q.Type {
	case internal.QueryTGet:
		if err := fsm.requireFeature(db.FeatureGet, q.Type); err != nil {
			return nil, err
		}
		val, ok := fsm.database.Get(q.Key)
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTGetMany:
		if err := fsm.requireFeature(db.FeatureGet, q.Type); err != nil {
			return nil, err
		}
		pairs := make([]store.KeyValue, 0, len(q.Keys))
		for _, key := range q.Keys {
			if val, ok := fsm.database.Get(key); ok {
				pairs = append(pairs, store.KeyValue{Key: key, Value: val})
			}
		}
		return pairs, nil
	case internal.QueryTHas:
		if err := fsm.requireFeature(db.FeatureHas, q.Type); err != nil {
			return nil, err
		}
		return fsm.database.Has(q.Key), nil
	case internal.QueryTRange:
		if err := fsm.requireFeature(db.FeatureRange, q.Type); err != nil {
			return nil, err
		}
		pairs := make([]store.KeyValue, 0, fsm.database.Count())
		fsm.database.Range(func(key string, value []byte) bool {
			pairs = append(pairs, store.KeyValue{Key: key, Value: value})
			return true
		})
		return pairs, nil
	case internal.QueryTKeys:
		if err := fsm.requireFeature(db.FeatureRange, q.Type); err != nil {
			return nil, err
		}
		keys := make([]string, 0, fsm.database.Count())
		fsm.database.Range(func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
		return keys, nil
	case internal.QueryTCount:
		if err := fsm.requireFeature(db.FeatureRange, q.Type); err != nil {
			return nil, err
		}
		return fsm.database.Count(), nil
	case internal.QueryTTimestamps:
		if err := fsm.requireFeature(db.FeatureTimestamps, q.Type); err != nil {
			return nil, err
		}
		created, updated, ok := fsm.database.Timestamps(q.Key)
		return internal.QueryResult{
			Ok:        ok,
			CreatedAt: created,
			UpdatedAt: updated,
		}, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the KVDB instance
// Every entry carries a serialized oplog.Op. The raft index of the entry is used as write index
// and the timestamp of the op (set by the proposing node) as wall clock time, so that every
// replica ends up with exactly the same state.
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	for idx, e := range entries {
		entries[idx].Result = fsm.apply(e)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("Statemashine took long to update. Batch updated %d entries, took %.2fms:", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single raft entry and returns its result
func (fsm *KVStateMachine) apply(e sm.Entry) sm.Result {
	if len(e.Cmd) == 0 {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
	}

	// Deserialize the command
	var op oplog.Op
	if err := op.Deserialize(e.Cmd); err != nil {
		return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
	}

	// Check if the db supports the operation
	feat, err := internal.RequiredFeature(op.Type)
	if err != nil {
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", op.Type)),
		}
	}
	if !fsm.database.SupportsFeature(feat) {
		return sm.Result{
			Value: uint64(store.RetCUnsupportedOperation),
			Data:  []byte(fmt.Sprintf("%s operation is not suported", op.Type)),
		}
	}

	switch op.Type {
	case oplog.OpTWrite:
		fsm.database.Set(op.Key, op.Value, e.Index, op.Timestamp)
	case oplog.OpTWriteMany:
		for _, p := range op.Pairs {
			fsm.database.Set(p.Key, p.Value, e.Index, op.Timestamp)
		}
	case oplog.OpTRemove:
		fsm.database.Delete(op.Key, e.Index)
	case oplog.OpTRemoveMany:
		for _, key := range op.Keys {
			fsm.database.Delete(key, e.Index)
		}
	case oplog.OpTRemoveAll:
		fsm.database.DeleteAll(e.Index)
	}
	fsm.database.SetWriteIdx(e.Index)

	return sm.Result{
		Value: uint64(store.RetCSuccess),
		Data:  internal.ResultData(op),
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implemantation does not supports Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot restores the database from a snapshot written by SaveSnapshot.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implemantation does not supports Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
