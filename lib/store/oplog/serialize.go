package oplog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/ValentinKolb/sKV/lib/store"
)

// formatVersion is the first byte of every serialized op
const formatVersion = 1

// headerSize = version + type + id + timestamp
const headerSize = 1 + 1 + 16 + 8

var errShortData = errors.New("data too short for op")

// SizeBytes returns the exact number of bytes needed to serialize this op
func (op Op) SizeBytes() int {
	size := headerSize
	switch op.Type {
	case OpTWrite:
		size += 4 + len(op.Key) + 4 + len(op.Value)
	case OpTWriteMany:
		size += 4
		for _, p := range op.Pairs {
			size += 4 + len(p.Key) + 4 + len(p.Value)
		}
	case OpTRemove:
		size += 4 + len(op.Key)
	case OpTRemoveMany:
		size += 4
		for _, k := range op.Keys {
			size += 4 + len(k)
		}
	}
	return size
}

// Serialize serializes an op into a byte array with the format (big endian):
//
//	1 byte format version,
//	1 byte op type,
//	16 bytes id,
//	8 bytes timestamp,
//	followed by the body of the op type:
//	  write:      keyLen u32 | key | valueLen u32 | value
//	  writeMany:  count u32 | count x (keyLen u32 | key | valueLen u32 | value)
//	  remove:     keyLen u32 | key
//	  removeMany: count u32 | count x (keyLen u32 | key)
//	  removeAll:  (empty)
func (op Op) Serialize() []byte {
	buf := make([]byte, 0, op.SizeBytes())

	buf = append(buf, formatVersion, byte(op.Type))
	buf = append(buf, op.ID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(op.Timestamp))

	switch op.Type {
	case OpTWrite:
		buf = appendString(buf, op.Key)
		buf = appendBytes(buf, op.Value)
	case OpTWriteMany:
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(op.Pairs)))
		for _, p := range op.Pairs {
			buf = appendString(buf, p.Key)
			buf = appendBytes(buf, p.Value)
		}
	case OpTRemove:
		buf = appendString(buf, op.Key)
	case OpTRemoveMany:
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(op.Keys)))
		for _, k := range op.Keys {
			buf = appendString(buf, k)
		}
	}

	return buf
}

// Deserialize extracts all op fields from a byte array.
// Corrupt or truncated input results in an error. The op does not reference data after the call.
func (op *Op) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return errShortData
	}
	if data[0] != formatVersion {
		return fmt.Errorf("unsupported op format version %d", data[0])
	}

	t := OpType(data[1])
	if !t.Valid() {
		return store.Errorf(store.RetCInvalidOperation, "unknown op type %d", data[1])
	}

	*op = Op{Type: t}
	copy(op.ID[:], data[2:18])
	op.Timestamp = int64(binary.BigEndian.Uint64(data[18:26]))

	r := reader{data: data[headerSize:]}

	switch t {
	case OpTWrite:
		op.Key = r.readString()
		op.Value = r.readBytes()
	case OpTWriteMany:
		n := r.count(8) // every pair needs at least two length prefixes
		op.Pairs = make([]store.KeyValue, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			key := r.readString()
			value := r.readBytes()
			op.Pairs = append(op.Pairs, store.KeyValue{Key: key, Value: value})
		}
	case OpTRemove:
		op.Key = r.readString()
	case OpTRemoveMany:
		n := r.count(4)
		op.Keys = make([]string, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			op.Keys = append(op.Keys, r.readString())
		}
	}

	if r.err != nil {
		return fmt.Errorf("invalid %s op: %w", t, r.err)
	}
	if len(r.data) != 0 {
		return fmt.Errorf("invalid %s op: %d trailing bytes", t, len(r.data))
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// reader consumes length prefixed fields and keeps the first error
type reader struct {
	data []byte
	err  error
}

func (r *reader) readUint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.data) < 4 {
		r.err = errShortData
		return 0
	}
	v := binary.BigEndian.Uint32(r.data)
	r.data = r.data[4:]
	return v
}

func (r *reader) next(n uint32) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(len(r.data)) < uint64(n) {
		r.err = fmt.Errorf("%w: field of length %d", errShortData, n)
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) readString() string {
	return string(r.next(r.readUint32()))
}

func (r *reader) readBytes() []byte {
	b := r.next(r.readUint32())
	if r.err != nil {
		return nil
	}
	return copyBytes(b)
}

// count reads an element count and checks it against the remaining data
func (r *reader) count(minElemSize int) int {
	n := r.readUint32()
	if r.err == nil && uint64(n)*uint64(minElemSize) > uint64(len(r.data)) {
		r.err = fmt.Errorf("%w: %d elements", errShortData, n)
		return 0
	}
	return int(n)
}
