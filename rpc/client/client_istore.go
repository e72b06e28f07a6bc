package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport"
)

// NewRPCStore creates a new RPC store
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns the store and an error if the transport could not connect
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCStore, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	return &RPCStore{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// RPCStore is a store.IStore that forwards every call to a shard of an sKV server.
// Failed reads are reported as absence, the cause is available with LastError.
type RPCStore struct {
	rpcClientAdapter
	lastErr store.ErrorRecorder
}

// invoke sends req and records the error for LastError
func (i *RPCStore) invoke(req *common.Message) (*common.Message, error) {
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		i.lastErr.Record(err)
	}
	return resp, err
}

// read sends a read request, a failure is logged and reported as nil response
func (i *RPCStore) read(req *common.Message) *common.Message {
	resp, err := i.invoke(req)
	if err != nil {
		Logger.Warningf("shard %d: %s failed: %v", i.shardId, req.MsgType, err)
		return nil
	}
	return resp
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *RPCStore) Write(key string, value []byte) error {
	_, err := i.invoke(common.NewWriteRequest(key, value))
	return err
}

func (i *RPCStore) WriteMany(pairs []store.KeyValue) error {
	_, err := i.invoke(common.NewWriteManyRequest(pairs))
	return err
}

func (i *RPCStore) Read(key string) ([]byte, bool) {
	resp := i.read(common.NewReadRequest(key))
	if resp == nil || !resp.Ok {
		return nil, false
	}
	if resp.Value == nil {
		return []byte{}, true
	}
	return resp.Value, true
}

func (i *RPCStore) ReadMany(keys []string) [][]byte {
	pairs := i.ReadManyWithKeys(keys)
	values := make([][]byte, len(pairs))
	for idx, p := range pairs {
		values[idx] = p.Value
	}
	return values
}

func (i *RPCStore) ReadManyWithKeys(keys []string) []store.KeyValue {
	resp := i.read(common.NewReadManyRequest(keys))
	if resp == nil {
		return []store.KeyValue{}
	}
	return resp.Pairs()
}

func (i *RPCStore) ReadAll() [][]byte {
	pairs := i.ReadAllWithKeys()
	values := make([][]byte, len(pairs))
	for idx, p := range pairs {
		values[idx] = p.Value
	}
	return values
}

func (i *RPCStore) ReadAllWithKeys() []store.KeyValue {
	resp := i.read(common.NewReadAllRequest())
	if resp == nil {
		return []store.KeyValue{}
	}
	return resp.Pairs()
}

func (i *RPCStore) Remove(key string) error {
	_, err := i.invoke(common.NewRemoveRequest(key))
	return err
}

func (i *RPCStore) RemoveMany(keys []string) error {
	_, err := i.invoke(common.NewRemoveManyRequest(keys))
	return err
}

func (i *RPCStore) RemoveAll() error {
	_, err := i.invoke(common.NewRemoveAllRequest())
	return err
}

func (i *RPCStore) Has(key string) bool {
	resp := i.read(common.NewHasRequest(key))
	return resp != nil && resp.Ok
}

func (i *RPCStore) Count() int {
	resp := i.read(common.NewCountRequest())
	if resp == nil {
		return 0
	}
	return int(resp.Num)
}

func (i *RPCStore) Keys() []string {
	resp := i.read(common.NewKeysRequest())
	if resp == nil || resp.Keys == nil {
		return []string{}
	}
	return resp.Keys
}

func (i *RPCStore) CreatedAt(key string) (time.Time, bool) {
	return i.timestamp(common.MsgTKVCreatedAt, key)
}

func (i *RPCStore) UpdatedAt(key string) (time.Time, bool) {
	return i.timestamp(common.MsgTKVUpdatedAt, key)
}

func (i *RPCStore) timestamp(msgType common.MessageType, key string) (time.Time, bool) {
	resp := i.read(common.NewTimestampRequest(msgType, key))
	if resp == nil {
		return time.Time{}, false
	}
	return resp.Time()
}

// GetDBInfo returns the info of the store behind the remote shard
func (i *RPCStore) GetDBInfo() (db.DatabaseInfo, error) {
	resp, err := i.invoke(common.NewGetDBInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	var info db.DatabaseInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("failed to decode db info: %w", err)
	}
	return info, nil
}

// LastError returns the error of the last failed request (see store.IDiagnostics)
func (i *RPCStore) LastError() error {
	return i.lastErr.LastError()
}

// Close closes the transport
func (i *RPCStore) Close() error {
	return i.transport.Close()
}
