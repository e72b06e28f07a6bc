package server

import (
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
	"github.com/ValentinKolb/sKV/rpc/common"
)

func TestAdapterRejectsInvalidRequests(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	backend := storetesting.NewFakeStore()

	tests := []struct {
		name string
		req  *common.Message
		s    store.IStore
	}{
		{"nil store", common.NewReadRequest("k"), nil},
		{"unknown type", &common.Message{MsgType: common.MsgTUnknown}, backend},
		{"custom type", common.NewCustomRequest([]byte("x")), backend},
		{"keys without values", &common.Message{MsgType: common.MsgTKVWriteMany, Keys: []string{"a"}}, backend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := adapter.Handle(tt.req, tt.s)
			if resp.MsgType != common.MsgTError || resp.Err == "" {
				t.Errorf("expected an error response, got %+v", resp)
			}
		})
	}

	if calls := backend.Calls(); len(calls) != 0 {
		t.Errorf("invalid requests must not reach the store, got %v", calls)
	}
}

func TestAdapterPassesStoreErrors(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	backend := storetesting.NewFakeStore()
	backend.SetFailure(func(method string, keys []string) error {
		return store.NewError(store.RetCUnavailable, "remote down")
	})

	resp := adapter.Handle(common.NewWriteRequest("k", []byte("v")), backend)
	if resp.MsgType != common.MsgTKVWrite {
		t.Errorf("expected a write response, got %s", resp.MsgType)
	}
	if resp.Err != "remote down" || resp.Num != int64(store.RetCUnavailable) {
		t.Errorf("expected the store error with its code, got %+v", resp)
	}
}

func TestAdapterBatchIsOneCall(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	backend := storetesting.NewFakeStore()

	req := common.NewWriteManyRequest([]store.KeyValue{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}})
	if resp := adapter.Handle(req, backend); resp.Err != "" {
		t.Fatalf("unexpected error %s", resp.Err)
	}
	calls := backend.Calls()
	if len(calls) != 1 || calls[0].Method != "WriteMany" {
		t.Errorf("expected one WriteMany call, got %v", calls)
	}
}
