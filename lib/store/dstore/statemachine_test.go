package dstore

import (
	"bytes"
	"sort"
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/engines/maple"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/dstore/internal"
	"github.com/ValentinKolb/sKV/lib/store/oplog"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newTestMachine() *KVStateMachine {
	factory := CreateStateMaschineFactory(func() db.KVDB {
		return maple.NewMapleDB(nil)
	})
	return factory(1, 1).(*KVStateMachine)
}

// entries wraps ops into raft entries with consecutive indices starting at first
func entries(first uint64, ops ...oplog.Op) []sm.Entry {
	es := make([]sm.Entry, len(ops))
	for i, op := range ops {
		es[i] = sm.Entry{Index: first + uint64(i), Cmd: op.Serialize()}
	}
	return es
}

func lookup[R any](t *testing.T, fsm *KVStateMachine, q internal.Query) R {
	t.Helper()
	res, err := fsm.Lookup(q)
	if err != nil {
		t.Fatalf("Unexpected error during %s lookup: %v", q.Type, err)
	}
	casted, ok := res.(R)
	if !ok {
		t.Fatalf("Unexpected result type %T for %s lookup", res, q.Type)
	}
	return casted
}

func TestStateMachineUpdateAndLookup(t *testing.T) {
	fsm := newTestMachine()
	defer fsm.Close()

	write := oplog.NewWrite("a", []byte("1"))
	results, err := fsm.Update(entries(1,
		write,
		oplog.NewWriteMany([]store.KeyValue{{Key: "b", Value: []byte("2")}, {Key: "c", Value: []byte("3")}}),
		oplog.NewRemove("c"),
		oplog.NewWrite("d", []byte("4")),
		oplog.NewRemoveMany([]string{"d", "missing"}),
	))
	if err != nil {
		t.Fatalf("Unexpected error during Update: %v", err)
	}
	for i, r := range results {
		if r.Result.Value != uint64(store.RetCSuccess) {
			t.Errorf("Entry %d failed: %s", i, r.Result.Data)
		}
	}

	get := lookup[internal.QueryResult](t, fsm, internal.Query{Type: internal.QueryTGet, Key: "a"})
	if !get.Ok || string(get.Value) != "1" {
		t.Errorf("Expected a=1, got %+v", get)
	}

	if lookup[bool](t, fsm, internal.Query{Type: internal.QueryTHas, Key: "c"}) {
		t.Errorf("Expected c to be removed")
	}
	if count := lookup[int](t, fsm, internal.Query{Type: internal.QueryTCount}); count != 2 {
		t.Errorf("Expected 2 keys, got %d", count)
	}

	keys := lookup[[]string](t, fsm, internal.Query{Type: internal.QueryTKeys})
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Expected keys [a b], got %v", keys)
	}

	pairs := lookup[[]store.KeyValue](t, fsm, internal.Query{Type: internal.QueryTGetMany, Keys: []string{"b", "missing", "a"}})
	if len(pairs) != 2 || pairs[0].Key != "b" || pairs[1].Key != "a" {
		t.Errorf("Expected pairs for b and a, got %v", pairs)
	}

	all := lookup[[]store.KeyValue](t, fsm, internal.Query{Type: internal.QueryTRange})
	if len(all) != 2 {
		t.Errorf("Expected 2 pairs, got %v", all)
	}

	// timestamps come from the op, not from the replica clock
	ts := lookup[internal.QueryResult](t, fsm, internal.Query{Type: internal.QueryTTimestamps, Key: "a"})
	if !ts.Ok || ts.CreatedAt != write.Timestamp || ts.UpdatedAt != write.Timestamp {
		t.Errorf("Expected timestamps %d, got %+v", write.Timestamp, ts)
	}

	info := lookup[db.DatabaseInfo](t, fsm, internal.Query{Type: internal.QueryTGetDBInfo})
	if info.KeyCount != 2 {
		t.Errorf("Expected key count 2 in db info, got %d", info.KeyCount)
	}
}

func TestStateMachineRemoveAll(t *testing.T) {
	fsm := newTestMachine()
	defer fsm.Close()

	_, _ = fsm.Update(entries(1,
		oplog.NewWrite("a", []byte("1")),
		oplog.NewWrite("b", []byte("2")),
		oplog.NewRemoveAll(),
		oplog.NewWrite("c", []byte("3")),
	))

	keys := lookup[[]string](t, fsm, internal.Query{Type: internal.QueryTKeys})
	if len(keys) != 1 || keys[0] != "c" {
		t.Errorf("Expected only the write after RemoveAll to survive, got %v", keys)
	}
}

func TestStateMachineInvalidEntries(t *testing.T) {
	fsm := newTestMachine()
	defer fsm.Close()

	valid := oplog.NewWrite("a", []byte("1")).Serialize()
	unknown := oplog.NewWrite("x", nil).Serialize()
	unknown[1] = 99 // op type

	results, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1, 2, 3}},
		{Index: 3, Cmd: unknown},
		{Index: 4, Cmd: valid},
	})
	if err != nil {
		t.Fatalf("Update must not fail for invalid entries: %v", err)
	}

	if results[0].Result.Value != uint64(store.RetCInvalidOperation) {
		t.Errorf("Expected invalid operation for an empty command, got %d", results[0].Result.Value)
	}
	if results[1].Result.Value == uint64(store.RetCSuccess) {
		t.Errorf("Expected an error for a corrupt command")
	}
	if results[2].Result.Value == uint64(store.RetCSuccess) {
		t.Errorf("Expected an error for an unknown op type")
	}
	if results[3].Result.Value != uint64(store.RetCSuccess) {
		t.Errorf("Expected the valid entry to succeed, got %s", results[3].Result.Data)
	}

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("Expected an error for an invalid query type")
	}
	if _, err := fsm.Lookup(internal.Query{Type: 200}); err == nil {
		t.Errorf("Expected an error for an unknown query")
	}
}

func TestStateMachineReplicasConverge(t *testing.T) {
	ops := []oplog.Op{
		oplog.NewWrite("a", []byte("1")),
		oplog.NewWriteMany([]store.KeyValue{{Key: "a", Value: []byte("2")}, {Key: "b", Value: []byte("3")}}),
		oplog.NewRemove("b"),
	}

	var states [][]store.KeyValue
	for i := 0; i < 3; i++ {
		fsm := newTestMachine()
		_, _ = fsm.Update(entries(10, ops...))
		states = append(states, lookup[[]store.KeyValue](t, fsm, internal.Query{Type: internal.QueryTRange}))

		ts := lookup[internal.QueryResult](t, fsm, internal.Query{Type: internal.QueryTTimestamps, Key: "a"})
		if ts.CreatedAt != ops[0].Timestamp || ts.UpdatedAt != ops[1].Timestamp {
			t.Errorf("Replica %d has diverging timestamps: %+v", i, ts)
		}
		fsm.Close()
	}

	for i := 1; i < len(states); i++ {
		if len(states[i]) != 1 || states[i][0].Key != "a" || !bytes.Equal(states[i][0].Value, states[0][0].Value) {
			t.Errorf("Replica %d diverged: %v vs %v", i, states[i], states[0])
		}
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	fsm := newTestMachine()
	defer fsm.Close()

	_, _ = fsm.Update(entries(1,
		oplog.NewWrite("a", []byte("1")),
		oplog.NewWrite("b", []byte("2")),
	))

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatalf("Unexpected error during SaveSnapshot: %v", err)
	}

	recovered := newTestMachine()
	defer recovered.Close()
	if err := recovered.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("Unexpected error during RecoverFromSnapshot: %v", err)
	}

	get := lookup[internal.QueryResult](t, recovered, internal.Query{Type: internal.QueryTGet, Key: "b"})
	if !get.Ok || string(get.Value) != "2" {
		t.Errorf("Expected b=2 after recovery, got %+v", get)
	}

	// writes with an index below the snapshot are stale
	_, _ = recovered.Update(entries(1, oplog.NewWrite("b", []byte("old"))))
	get = lookup[internal.QueryResult](t, recovered, internal.Query{Type: internal.QueryTGet, Key: "b"})
	if string(get.Value) != "2" {
		t.Errorf("Expected the stale write to be ignored, got %q", get.Value)
	}
}
