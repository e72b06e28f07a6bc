package common

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

func TestPairsRoundTrip(t *testing.T) {
	pairs := []store.KeyValue{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: nil},
		{Key: "c", Value: []byte("3")},
	}

	msg := NewWriteManyRequest(pairs)
	if msg.MsgType != MsgTKVWriteMany {
		t.Fatalf("unexpected type %s", msg.MsgType)
	}
	if len(msg.Keys) != 3 || len(msg.Values) != 3 {
		t.Fatalf("expected 3 keys and values, got %d and %d", len(msg.Keys), len(msg.Values))
	}

	got := msg.Pairs()
	want := []store.KeyValue{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte{}},
		{Key: "c", Value: []byte("3")},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Pairs() = %v, want %v", got, want)
	}
}

func TestPairsMissingValues(t *testing.T) {
	msg := &Message{Keys: []string{"a", "b"}, Values: [][]byte{[]byte("1")}}
	pairs := msg.Pairs()
	if len(pairs) != 2 || pairs[1].Key != "b" || pairs[1].Value == nil || len(pairs[1].Value) != 0 {
		t.Errorf("unexpected pairs %v", pairs)
	}
}

func TestTimestampResponse(t *testing.T) {
	now := time.Unix(0, time.Now().UnixNano())

	msg := NewTimestampResponse(MsgTKVCreatedAt, now, true, nil)
	got, ok := msg.Time()
	if !ok || !got.Equal(now) {
		t.Errorf("Time() = %v, %v; want %v, true", got, ok, now)
	}

	msg = NewTimestampResponse(MsgTKVUpdatedAt, now, false, nil)
	if _, ok := msg.Time(); ok || msg.Num != 0 {
		t.Errorf("expected no time for a missing key, got %+v", msg)
	}
}

func TestResponseErrors(t *testing.T) {
	if msg := NewResponse(MsgTKVWrite, nil); msg.Err != "" {
		t.Errorf("expected no error, got %q", msg.Err)
	}
	if msg := NewResponse(MsgTKVRemove, errors.New("boom")); msg.Err != "boom" {
		t.Errorf("expected error boom, got %q", msg.Err)
	}
	if msg := NewReadResponse(nil, true, nil); msg.Value == nil {
		t.Error("a found empty value must not be nil")
	}
}

func TestMessageTypeJSON(t *testing.T) {
	for msgType := MsgTSuccess; msgType <= MsgTCustom; msgType++ {
		data, err := json.Marshal(msgType)
		if err != nil {
			t.Fatalf("marshal %d: %v", msgType, err)
		}
		var got MessageType
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != msgType {
			t.Errorf("round trip of %s returned %s", msgType, got)
		}
	}

	var msgType MessageType
	if err := json.Unmarshal([]byte(`"lock"`), &msgType); err == nil {
		t.Error("expected an error for an unknown message type")
	}
	if MessageType(200).String() != "unknown" {
		t.Error("expected unknown for an undefined message type")
	}
}

func TestStoreErrorCodeSurvives(t *testing.T) {
	msg := NewResponse(MsgTKVWrite, store.NewError(store.RetCUnsupportedOperation, "no writes"))

	err := msg.AsError()
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected a *store.Error, got %T: %v", err, err)
	}
	if storeErr.Code != store.RetCUnsupportedOperation || storeErr.Msg != "no writes" {
		t.Errorf("unexpected error %+v", storeErr)
	}

	if err := NewResponse(MsgTKVWrite, nil).AsError(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := NewErrorResponse("shard not found").AsError(); err == nil || err.Error() != "shard not found" {
		t.Errorf("unexpected error %v", err)
	}
}
