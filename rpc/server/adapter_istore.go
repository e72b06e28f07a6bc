package server

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, s store.IStore) *common.Message {
	// Check for nil store
	if s == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {

	// mutations

	case common.MsgTKVWrite:
		return common.NewResponse(req.MsgType, s.Write(req.Key, req.Value))
	case common.MsgTKVWriteMany:
		if len(req.Keys) != len(req.Values) {
			return common.NewErrorResponse(
				fmt.Sprintf("RPC IStoreAdapter - %d keys but %d values", len(req.Keys), len(req.Values)),
			)
		}
		return common.NewResponse(req.MsgType, s.WriteMany(req.Pairs()))
	case common.MsgTKVRemove:
		return common.NewResponse(req.MsgType, s.Remove(req.Key))
	case common.MsgTKVRemoveMany:
		return common.NewResponse(req.MsgType, s.RemoveMany(req.Keys))
	case common.MsgTKVRemoveAll:
		return common.NewResponse(req.MsgType, s.RemoveAll())

	// reads

	case common.MsgTKVRead:
		val, ok := s.Read(req.Key)
		return common.NewReadResponse(val, ok, nil)
	case common.MsgTKVReadMany:
		return common.NewPairsResponse(req.MsgType, s.ReadManyWithKeys(req.Keys), nil)
	case common.MsgTKVReadAll:
		return common.NewPairsResponse(req.MsgType, s.ReadAllWithKeys(), nil)
	case common.MsgTKVHas:
		return common.NewHasResponse(s.Has(req.Key), nil)
	case common.MsgTKVCount:
		return common.NewCountResponse(s.Count(), nil)
	case common.MsgTKVKeys:
		return common.NewKeysResponse(s.Keys(), nil)
	case common.MsgTKVCreatedAt:
		t, ok := s.CreatedAt(req.Key)
		return common.NewTimestampResponse(req.MsgType, t, ok, nil)
	case common.MsgTKVUpdatedAt:
		t, ok := s.UpdatedAt(req.Key)
		return common.NewTimestampResponse(req.MsgType, t, ok, nil)
	case common.MsgTKVGetDBInfo:
		info, err := s.GetDBInfo()
		if err != nil {
			return common.NewGetDBInfoResponse(nil, err)
		}
		data, err := json.Marshal(info)
		return common.NewGetDBInfoResponse(data, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

