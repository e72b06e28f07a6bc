package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/sKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: [MsgType u8][flags u8] followed by the present fields in flag order.
// Strings and byte slices are prefixed with their length (u32), lists with their element count (u32).
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey    byte = 1 << 0
	hasValue  byte = 1 << 1
	hasKeys   byte = 1 << 2
	hasValues byte = 1 << 3
	hasOk     byte = 1 << 4
	hasNum    byte = 1 << 5
	hasErr    byte = 1 << 6
	hasMeta   byte = 1 << 7
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, 2, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	if msg.Key != "" {
		flags |= hasKey
		result = appendBytes(result, []byte(msg.Key))
	}

	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}

	if msg.Keys != nil {
		flags |= hasKeys
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Keys)))
		for _, key := range msg.Keys {
			result = appendBytes(result, []byte(key))
		}
	}

	if msg.Values != nil {
		flags |= hasValues
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Values)))
		for _, value := range msg.Values {
			result = appendBytes(result, value)
		}
	}

	// Ok is only written if true, the flag alone carries the information
	if msg.Ok {
		flags |= hasOk
	}

	if msg.Num != 0 {
		flags |= hasNum
		result = binary.BigEndian.AppendUint64(result, uint64(msg.Num))
	}

	if msg.Err != "" {
		flags |= hasErr
		result = appendBytes(result, []byte(msg.Err))
	}

	if msg.Meta != nil {
		flags |= hasMeta
		result = appendBytes(result, msg.Meta)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	r := reader{data: data, pos: 2}
	flags := data[1]

	*msg = common.Message{MsgType: common.MessageType(data[0])}

	if flags&hasKey != 0 {
		key, err := r.bytes("key")
		if err != nil {
			return err
		}
		msg.Key = string(key)
	}

	if flags&hasValue != 0 {
		value, err := r.bytes("value")
		if err != nil {
			return err
		}
		msg.Value = value
	}

	if flags&hasKeys != 0 {
		n, err := r.count("keys")
		if err != nil {
			return err
		}
		msg.Keys = make([]string, n)
		for i := range msg.Keys {
			key, err := r.bytes("keys")
			if err != nil {
				return err
			}
			msg.Keys[i] = string(key)
		}
	}

	if flags&hasValues != 0 {
		n, err := r.count("values")
		if err != nil {
			return err
		}
		msg.Values = make([][]byte, n)
		for i := range msg.Values {
			if msg.Values[i], err = r.bytes("values"); err != nil {
				return err
			}
		}
	}

	msg.Ok = flags&hasOk != 0

	if flags&hasNum != 0 {
		if r.pos+8 > len(data) {
			return fmt.Errorf("data too short for num")
		}
		msg.Num = int64(binary.BigEndian.Uint64(data[r.pos : r.pos+8]))
		r.pos += 8
	}

	if flags&hasErr != 0 {
		errBytes, err := r.bytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(errBytes)
	}

	if flags&hasMeta != 0 {
		meta, err := r.bytes("meta")
		if err != nil {
			return err
		}
		msg.Meta = meta
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Key != "" {
		size += 4 + len(msg.Key) // 4 bytes for length + key string
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value) // 4 bytes for length + value bytes
	}
	if msg.Keys != nil {
		size += 4 // element count
		for _, key := range msg.Keys {
			size += 4 + len(key)
		}
	}
	if msg.Values != nil {
		size += 4 // element count
		for _, value := range msg.Values {
			size += 4 + len(value)
		}
	}
	if msg.Num != 0 {
		size += 8 // int64
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err) // 4 bytes for length + error string
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta) // 4 bytes for length + meta bytes
	}

	return size
}

// appendBytes appends a length prefixed byte slice
func appendBytes(dst []byte, b []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// reader reads length prefixed fields from a serialized message
type reader struct {
	data []byte
	pos  int
}

// count reads an element count, counts larger than the remaining data are rejected
func (r *reader) count(field string) (int, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s count", field)
	}
	n := int(binary.BigEndian.Uint32(r.data[r.pos : r.pos+4]))
	r.pos += 4

	// every element needs at least its 4 byte length prefix
	if n > (len(r.data)-r.pos)/4 {
		return 0, fmt.Errorf("data too short for %s: %d elements announced", field, n)
	}
	return n, nil
}

// bytes reads a length prefixed byte slice. The result is a copy and never nil.
func (r *reader) bytes(field string) ([]byte, error) {
	if r.pos+4 > len(r.data) {
		return nil, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(r.data[r.pos : r.pos+4]))
	r.pos += 4

	if n > len(r.data)-r.pos {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}
