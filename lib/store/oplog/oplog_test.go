package oplog

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
)

func sampleOps() []Op {
	return []Op{
		NewWrite("key", []byte("value")),
		NewWrite("", nil),
		NewWriteMany([]store.KeyValue{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte{}}}),
		NewWriteMany(nil),
		NewRemove("key"),
		NewRemoveMany([]string{"a", "b", "c"}),
		NewRemoveMany([]string{}),
		NewRemoveAll(),
	}
}

// normalize maps nil and empty slices to the same value for comparison
func normalize(op Op) Op {
	if len(op.Value) == 0 {
		op.Value = nil
	}
	for i := range op.Pairs {
		if len(op.Pairs[i].Value) == 0 {
			op.Pairs[i].Value = nil
		}
	}
	if len(op.Pairs) == 0 {
		op.Pairs = nil
	}
	if len(op.Keys) == 0 {
		op.Keys = nil
	}
	return op
}

func TestSerializeDeserialize(t *testing.T) {
	for _, op := range sampleOps() {
		t.Run(op.Type.String(), func(t *testing.T) {
			data := op.Serialize()

			if len(data) != op.SizeBytes() {
				t.Errorf("SizeBytes() = %d, serialized %d bytes", op.SizeBytes(), len(data))
			}

			var decoded Op
			if err := decoded.Deserialize(data); err != nil {
				t.Fatalf("Deserialize failed: %v", err)
			}

			if !reflect.DeepEqual(normalize(op), normalize(decoded)) {
				t.Errorf("Round trip mismatch:\n got  %+v\n want %+v", decoded, op)
			}

			// decoded op must not share memory with the input buffer
			for i := range data {
				data[i] = 0xff
			}
			if decoded.Type == OpTWrite && len(op.Value) > 0 && !bytes.Equal(decoded.Value, op.Value) {
				t.Errorf("Decoded value references the input buffer")
			}
		})
	}
}

func TestDeserializeCorruptData(t *testing.T) {
	data := NewWriteMany([]store.KeyValue{
		{Key: "key-1", Value: []byte("value-1")},
		{Key: "key-2", Value: []byte("value-2")},
	}).Serialize()

	// every truncation must fail without panicking
	for i := 0; i < len(data); i++ {
		var op Op
		if err := op.Deserialize(data[:i]); err == nil {
			t.Errorf("Expected error for data truncated to %d bytes", i)
		}
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad version", func(b []byte) []byte { b[0] = 99; return b }},
		{"bad type", func(b []byte) []byte { b[1] = 0; return b }},
		{"huge count", func(b []byte) []byte { b[headerSize] = 0xff; return b }},
		{"trailing bytes", func(b []byte) []byte { return append(b, 1, 2, 3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := tt.mutate(append([]byte(nil), data...))
			var op Op
			if err := op.Deserialize(corrupt); err == nil {
				t.Errorf("Expected an error")
			}
		})
	}
}

func TestConstructorsCopyPayloads(t *testing.T) {
	value := []byte("value")
	pairs := []store.KeyValue{{Key: "a", Value: []byte("1")}}
	keys := []string{"x", "y"}

	write := NewWrite("k", value)
	writeMany := NewWriteMany(pairs)
	removeMany := NewRemoveMany(keys)

	value[0] = 'X'
	pairs[0].Value[0] = 'X'
	pairs[0].Key = "changed"
	keys[0] = "changed"

	if string(write.Value) != "value" {
		t.Errorf("NewWrite shares the value with the caller: %q", write.Value)
	}
	if writeMany.Pairs[0].Key != "a" || string(writeMany.Pairs[0].Value) != "1" {
		t.Errorf("NewWriteMany shares pairs with the caller: %+v", writeMany.Pairs)
	}
	if removeMany.Keys[0] != "x" {
		t.Errorf("NewRemoveMany shares keys with the caller: %v", removeMany.Keys)
	}

	clone := write.Clone()
	clone.Value[0] = 'Y'
	if string(write.Value) != "value" {
		t.Errorf("Clone shares the value with the original")
	}

	if NewWrite("k", nil).ID == NewWrite("k", nil).ID {
		t.Errorf("Expected unique op ids")
	}
}

func TestApply(t *testing.T) {
	fake := storetesting.NewFakeStore()

	ops := []Op{
		NewWrite("a", []byte("1")),
		NewWriteMany([]store.KeyValue{{Key: "b", Value: []byte("2")}, {Key: "c", Value: []byte("3")}}),
		NewRemove("a"),
		NewRemoveMany([]string{"b"}),
	}
	for _, op := range ops {
		if err := op.Apply(fake); err != nil {
			t.Fatalf("Apply(%s) failed: %v", op, err)
		}
	}

	calls := fake.Calls()
	want := []string{"Write", "WriteMany", "Remove", "RemoveMany"}
	if len(calls) != len(want) {
		t.Fatalf("Expected %d calls, got %d", len(want), len(calls))
	}
	for i, c := range calls {
		if c.Method != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], c.Method)
		}
	}
	if keys := calls[1].Keys; !reflect.DeepEqual(keys, []string{"b", "c"}) {
		t.Errorf("Batch write should be replayed as one call with both keys, got %v", keys)
	}

	if keys := fake.Keys(); !reflect.DeepEqual(keys, []string{"c"}) {
		t.Errorf("Expected only key c to remain, got %v", keys)
	}

	if err := NewRemoveAll().Apply(fake); err != nil || fake.Count() != 0 {
		t.Errorf("RemoveAll not applied: err=%v count=%d", err, fake.Count())
	}

	errRemote := errors.New("remote down")
	fake.SetFailure(func(string, []string) error { return errRemote })
	if err := NewWrite("x", nil).Apply(fake); !errors.Is(err, errRemote) {
		t.Errorf("Expected store error to be returned, got %v", err)
	}

	var invalid Op
	var storeErr *store.Error
	if err := invalid.Apply(fake); !errors.As(err, &storeErr) || storeErr.Code != store.RetCInvalidOperation {
		t.Errorf("Expected invalid operation error for zero op, got %v", err)
	}
}

func TestString(t *testing.T) {
	op := NewWrite("user:1", []byte("secret"))
	s := op.String()
	if bytes.Contains([]byte(s), []byte("secret")) {
		t.Errorf("String must not contain payloads: %s", s)
	}
	if !bytes.HasPrefix([]byte(s), []byte("write[")) {
		t.Errorf("Unexpected String output: %s", s)
	}
}
