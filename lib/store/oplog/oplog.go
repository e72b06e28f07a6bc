package oplog

import (
	"fmt"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/google/uuid"
	"time"
)

// OpType defines the kind of mutation an Op records.
type OpType uint8

const (
	OpTWrite      OpType = iota + 1 // Insert or update a single entry.
	OpTWriteMany                    // Insert or update a batch of entries.
	OpTRemove                       // Remove a single entry.
	OpTRemoveMany                   // Remove a batch of entries.
	OpTRemoveAll                    // Remove every entry.
)

func (t OpType) String() string {
	switch t {
	case OpTWrite:
		return "write"
	case OpTWriteMany:
		return "writeMany"
	case OpTRemove:
		return "remove"
	case OpTRemoveMany:
		return "removeMany"
	case OpTRemoveAll:
		return "removeAll"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// Valid reports whether t is one of the known op types.
func (t OpType) Valid() bool {
	return t >= OpTWrite && t <= OpTRemoveAll
}

// Op is a single entry of the operation log. It carries everything needed to replay
// the mutation against any store.IStore.
//
// Which fields are set depends on Type:
//   - OpTWrite: Key, Value
//   - OpTWriteMany: Pairs
//   - OpTRemove: Key
//   - OpTRemoveMany: Keys
//   - OpTRemoveAll: none
//
// An Op must be treated as immutable once created. The constructors copy all payloads,
// so an Op never shares memory with the call site that created it.
type Op struct {
	ID        uuid.UUID
	Type      OpType
	Key       string
	Value     []byte
	Pairs     []store.KeyValue
	Keys      []string
	Timestamp int64 // unix nanoseconds of the creation of the op
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

func newOp(t OpType) Op {
	return Op{
		ID:        uuid.New(),
		Type:      t,
		Timestamp: time.Now().UnixNano(),
	}
}

// NewWrite creates a write op for a single key.
func NewWrite(key string, value []byte) Op {
	op := newOp(OpTWrite)
	op.Key = key
	op.Value = copyBytes(value)
	return op
}

// NewWriteMany creates a single op for a batch of writes. The order of the pairs is preserved.
func NewWriteMany(pairs []store.KeyValue) Op {
	op := newOp(OpTWriteMany)
	op.Pairs = copyPairs(pairs)
	return op
}

// NewRemove creates a remove op for a single key.
func NewRemove(key string) Op {
	op := newOp(OpTRemove)
	op.Key = key
	return op
}

// NewRemoveMany creates a single op for a batch of removals.
func NewRemoveMany(keys []string) Op {
	op := newOp(OpTRemoveMany)
	op.Keys = copyKeys(keys)
	return op
}

// NewRemoveAll creates an op that removes every entry.
func NewRemoveAll() Op {
	return newOp(OpTRemoveAll)
}

// --------------------------------------------------------------------------
// Replay
// --------------------------------------------------------------------------

// Apply replays the op against s using the single matching store call.
// Batch ops are replayed as one WriteMany or RemoveMany call.
func (op Op) Apply(s store.IStore) error {
	switch op.Type {
	case OpTWrite:
		return s.Write(op.Key, op.Value)
	case OpTWriteMany:
		return s.WriteMany(op.Pairs)
	case OpTRemove:
		return s.Remove(op.Key)
	case OpTRemoveMany:
		return s.RemoveMany(op.Keys)
	case OpTRemoveAll:
		return s.RemoveAll()
	default:
		return store.Errorf(store.RetCInvalidOperation, "cannot apply op of type %s", op.Type)
	}
}

// Clone returns a deep copy of the op.
func (op Op) Clone() Op {
	op.Value = copyBytes(op.Value)
	op.Pairs = copyPairs(op.Pairs)
	op.Keys = copyKeys(op.Keys)
	return op
}

// String returns a short description of the op for logging. Payloads are never printed.
func (op Op) String() string {
	id := op.ID.String()[:8]
	switch op.Type {
	case OpTWrite:
		return fmt.Sprintf("%s[%s](key=%s, %d bytes)", op.Type, id, op.Key, len(op.Value))
	case OpTRemove:
		return fmt.Sprintf("%s[%s](key=%s)", op.Type, id, op.Key)
	case OpTWriteMany:
		return fmt.Sprintf("%s[%s](n=%d)", op.Type, id, len(op.Pairs))
	case OpTRemoveMany:
		return fmt.Sprintf("%s[%s](n=%d)", op.Type, id, len(op.Keys))
	default:
		return fmt.Sprintf("%s[%s]", op.Type, id)
	}
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func copyPairs(pairs []store.KeyValue) []store.KeyValue {
	if pairs == nil {
		return nil
	}
	c := make([]store.KeyValue, len(pairs))
	for i, p := range pairs {
		c[i] = store.KeyValue{Key: p.Key, Value: copyBytes(p.Value)}
	}
	return c
}

func copyKeys(keys []string) []string {
	if keys == nil {
		return nil
	}
	c := make([]string, len(keys))
	copy(c, keys)
	return c
}
