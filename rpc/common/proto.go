package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
//
// Key-value pairs are transferred as two parallel slices (Keys[i] belongs to Values[i]).
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" msgpack:"t" cbor:"1,keyasint"`

	// General fields
	Key    string   `json:"key,omitempty" msgpack:"k,omitempty" cbor:"2,keyasint,omitempty"`       // Used for: Write, Read, Remove, Has, CreatedAt, UpdatedAt
	Value  []byte   `json:"value,omitempty" msgpack:"v,omitempty" cbor:"3,keyasint,omitempty"`     // Used for: Write (request), Read (response)
	Keys   []string `json:"keys,omitempty" msgpack:"ks,omitempty" cbor:"4,keyasint,omitempty"`     // Used for: WriteMany, ReadMany, RemoveMany (request), ReadMany, ReadAll, Keys (response)
	Values [][]byte `json:"values,omitempty" msgpack:"vs,omitempty" cbor:"5,keyasint,omitempty"`   // Used for: WriteMany (request), ReadMany, ReadAll (response)

	// Response only fields
	Ok  bool   `json:"ok,omitempty" msgpack:"ok,omitempty" cbor:"6,keyasint,omitempty"`    // Used for: Read, Has, CreatedAt, UpdatedAt responses
	Num int64  `json:"num,omitempty" msgpack:"n,omitempty" cbor:"7,keyasint,omitempty"`    // Used for: Count (number of keys), CreatedAt and UpdatedAt (unix nanoseconds) responses
	Err string `json:"err,omitempty" msgpack:"e,omitempty" cbor:"8,keyasint,omitempty"`    // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty" msgpack:"m,omitempty" cbor:"9,keyasint,omitempty"` // Used for: GetDBInfo (json encoded db.DatabaseInfo), Custom
}

// Pairs returns the key-value pairs carried by Keys and Values.
// Some serializers drop empty values, so a missing value is returned as empty slice.
func (m *Message) Pairs() []store.KeyValue {
	pairs := make([]store.KeyValue, len(m.Keys))
	for i, key := range m.Keys {
		pairs[i].Key = key
		if i < len(m.Values) && m.Values[i] != nil {
			pairs[i].Value = m.Values[i]
		} else {
			pairs[i].Value = []byte{}
		}
	}
	return pairs
}

// setPairs stores pairs in Keys and Values
func (m *Message) setPairs(pairs []store.KeyValue) {
	m.Keys = make([]string, len(pairs))
	m.Values = make([][]byte, len(pairs))
	for i, p := range pairs {
		m.Keys[i] = p.Key
		m.Values[i] = p.Value
		if m.Values[i] == nil {
			m.Values[i] = []byte{}
		}
	}
}

// setErr stores err in the message. The code of a *store.Error is carried in Num.
func (m *Message) setErr(err error) *Message {
	if err == nil {
		return m
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		m.Err = storeErr.Msg
		m.Num = int64(storeErr.Code)
		return m
	}
	m.Err = err.Error()
	return m
}

// AsError returns the error carried by a response or nil.
// Errors that were a *store.Error on the server are returned as *store.Error with the same code.
func (m *Message) AsError() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	if m.Num > 0 {
		return store.NewError(store.RetCode(m.Num), m.Err)
	}
	if m.Err == "" {
		return errors.New("unknown error")
	}
	return errors.New(m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewWriteRequest creates a new Write request
func NewWriteRequest(key string, value []byte) *Message {
	if value == nil {
		value = []byte{}
	}
	return &Message{
		MsgType: MsgTKVWrite,
		Key:     key,
		Value:   value,
	}
}

// NewWriteManyRequest creates a new WriteMany request
func NewWriteManyRequest(pairs []store.KeyValue) *Message {
	msg := &Message{MsgType: MsgTKVWriteMany}
	msg.setPairs(pairs)
	return msg
}

// NewReadRequest creates a new Read request
func NewReadRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVRead,
		Key:     key,
	}
}

// NewReadResponse creates a new Read response
func NewReadResponse(value []byte, ok bool, err error) *Message {
	if ok && value == nil {
		value = []byte{}
	}
	msg := &Message{
		MsgType: MsgTKVRead,
		Ok:      ok,
		Value:   value,
	}
	return msg.setErr(err)
}

// NewReadManyRequest creates a new ReadMany request
func NewReadManyRequest(keys []string) *Message {
	return &Message{
		MsgType: MsgTKVReadMany,
		Keys:    keys,
	}
}

// NewReadAllRequest creates a new ReadAll request
func NewReadAllRequest() *Message {
	return &Message{MsgType: MsgTKVReadAll}
}

// NewPairsResponse creates a response carrying key-value pairs (ReadMany, ReadAll)
func NewPairsResponse(msgType MessageType, pairs []store.KeyValue, err error) *Message {
	msg := &Message{MsgType: msgType}
	msg.setPairs(pairs)
	return msg.setErr(err)
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVRemove,
		Key:     key,
	}
}

// NewRemoveManyRequest creates a new RemoveMany request
func NewRemoveManyRequest(keys []string) *Message {
	return &Message{
		MsgType: MsgTKVRemoveMany,
		Keys:    keys,
	}
}

// NewRemoveAllRequest creates a new RemoveAll request
func NewRemoveAllRequest() *Message {
	return &Message{MsgType: MsgTKVRemoveAll}
}

// NewResponse creates a response that only reports success or failure (all mutating operations)
func NewResponse(msgType MessageType, err error) *Message {
	msg := &Message{MsgType: msgType}
	return msg.setErr(err)
}

// NewHasRequest creates a new Has request
func NewHasRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVHas,
		Key:     key,
	}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVHas,
		Ok:      ok,
	}
	return msg.setErr(err)
}

// NewCountRequest creates a new Count request
func NewCountRequest() *Message {
	return &Message{MsgType: MsgTKVCount}
}

// NewCountResponse creates a new Count response
func NewCountResponse(count int, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVCount,
		Num:     int64(count),
	}
	return msg.setErr(err)
}

// NewKeysRequest creates a new Keys request
func NewKeysRequest() *Message {
	return &Message{MsgType: MsgTKVKeys}
}

// NewKeysResponse creates a new Keys response
func NewKeysResponse(keys []string, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVKeys,
		Keys:    keys,
	}
	return msg.setErr(err)
}

// NewTimestampRequest creates a new CreatedAt or UpdatedAt request
func NewTimestampRequest(msgType MessageType, key string) *Message {
	return &Message{
		MsgType: msgType,
		Key:     key,
	}
}

// NewTimestampResponse creates a new CreatedAt or UpdatedAt response
func NewTimestampResponse(msgType MessageType, t time.Time, ok bool, err error) *Message {
	msg := &Message{
		MsgType: msgType,
		Ok:      ok,
	}
	if ok {
		msg.Num = t.UnixNano()
	}
	return msg.setErr(err)
}

// Time returns the timestamp of a CreatedAt or UpdatedAt response
func (m *Message) Time() (time.Time, bool) {
	if !m.Ok {
		return time.Time{}, false
	}
	return time.Unix(0, m.Num), true
}

// NewGetDBInfoRequest creates a new GetDBInfo request
func NewGetDBInfoRequest() *Message {
	return &Message{MsgType: MsgTKVGetDBInfo}
}

// NewGetDBInfoResponse creates a new GetDBInfo response, info is the json encoded db.DatabaseInfo
func NewGetDBInfoResponse(info []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVGetDBInfo,
		Meta:    info,
	}
	return msg.setErr(err)
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
	return msg.setErr(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var msgTypeNames = map[MessageType]string{
	MsgTSuccess:      "success",
	MsgTError:        "error",
	MsgTKVWrite:      "write",
	MsgTKVWriteMany:  "writeMany",
	MsgTKVRead:       "read",
	MsgTKVReadMany:   "readMany",
	MsgTKVReadAll:    "readAll",
	MsgTKVRemove:     "remove",
	MsgTKVRemoveMany: "removeMany",
	MsgTKVRemoveAll:  "removeAll",
	MsgTKVHas:        "has",
	MsgTKVCount:      "count",
	MsgTKVKeys:       "keys",
	MsgTKVCreatedAt:  "createdAt",
	MsgTKVUpdatedAt:  "updatedAt",
	MsgTKVGetDBInfo:  "getDBInfo",
	MsgTCustom:       "custom",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	for msgType, name := range msgTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVWrite      // Write a key-value pair
	MsgTKVWriteMany  // Write a batch of key-value pairs
	MsgTKVRead       // Read a value by key
	MsgTKVReadMany   // Read the values of a list of keys
	MsgTKVReadAll    // Read all key-value pairs
	MsgTKVRemove     // Remove a key
	MsgTKVRemoveMany // Remove a batch of keys
	MsgTKVRemoveAll  // Remove all keys
	MsgTKVHas        // Check if a key exists
	MsgTKVCount      // Count the keys
	MsgTKVKeys       // List all keys
	MsgTKVCreatedAt  // Creation time of a key
	MsgTKVUpdatedAt  // Last update time of a key
	MsgTKVGetDBInfo  // Metadata about the underlying database

	// Custom operations

	MsgTCustom // Custom operation type
)
