package serializer

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ValentinKolb/sKV/rpc/common"
)

func mustCBOR() IRPCSerializer {
	s, err := NewCBORSerializer()
	if err != nil {
		panic(err)
	}
	return s
}

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":    NewJSONSerializer,
	"GOB":     NewGOBSerializer,
	"Binary":  NewBinarySerializer,
	"Msgpack": NewMsgpackSerializer,
	"CBOR":    mustCBOR,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Write request
		{
			MsgType: common.MsgTKVWrite,
			Key:     "test-key",
			Value:   []byte("test-value"),
		},

		// Read response
		{
			MsgType: common.MsgTKVRead,
			Value:   []byte("test-value"),
			Ok:      true,
		},

		// WriteMany request
		{
			MsgType: common.MsgTKVWriteMany,
			Keys:    []string{"a", "b", "c"},
			Values:  [][]byte{[]byte("1"), []byte("2"), []byte("3")},
		},

		// Count response
		{
			MsgType: common.MsgTKVCount,
			Num:     42,
		},

		// CreatedAt response
		{
			MsgType: common.MsgTKVCreatedAt,
			Ok:      true,
			Num:     1712345678901234567,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Message with all fields filled
		{
			MsgType: common.MsgTCustom,
			Key:     "test-key",
			Value:   []byte("test-value"),
			Keys:    []string{"k1", "k2"},
			Values:  [][]byte{[]byte("v1"), []byte("v2")},
			Ok:      true,
			Num:     -7,
			Err:     "partial failure",
			Meta:    []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestDeserializeResetsMessage checks that fields of a reused message do not leak into the next one
func TestDeserializeResetsMessage(t *testing.T) {
	for _, name := range []string{"Binary", "Msgpack", "CBOR"} {
		t.Run(name, func(t *testing.T) {
			serializer := testSerializers[name]()

			first, err := serializer.Serialize(common.Message{MsgType: common.MsgTKVRead, Value: []byte("old"), Ok: true})
			if err != nil {
				t.Fatal(err)
			}
			second, err := serializer.Serialize(common.Message{MsgType: common.MsgTKVRead})
			if err != nil {
				t.Fatal(err)
			}

			var msg common.Message
			if err := serializer.Deserialize(first, &msg); err != nil {
				t.Fatal(err)
			}
			if err := serializer.Deserialize(second, &msg); err != nil {
				t.Fatal(err)
			}
			if msg.Ok || msg.Value != nil {
				t.Errorf("Expected a cleared message, got %+v", msg)
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty value slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTKVWrite,
				Key:     "test",
				Value:   []byte{},
			},
		},
		{
			name: "Message with empty key list but not nil",
			msg: common.Message{
				MsgType: common.MsgTKVKeys,
				Keys:    []string{},
			},
		},
		{
			name: "Message with empty values inside the list",
			msg: common.Message{
				MsgType: common.MsgTKVWriteMany,
				Keys:    []string{"a", ""},
				Values:  [][]byte{{}, []byte("x")},
			},
		},
		{
			name: "Message with empty meta slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTCustom,
				Meta:    []byte{},
			},
		},
		{
			name: "Message with negative num",
			msg: common.Message{
				MsgType: common.MsgTKVUpdatedAt,
				Num:     -1,
				Ok:      true,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// the binary format keeps the difference between nil and empty slices
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
		})
	}
}

// TestBinaryDeserializeCopies checks that the result does not alias the input buffer
func TestBinaryDeserializeCopies(t *testing.T) {
	serializer := NewBinarySerializer()

	data, err := serializer.Serialize(common.Message{MsgType: common.MsgTKVRead, Value: []byte("value")})
	if err != nil {
		t.Fatal(err)
	}

	var msg common.Message
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatal(err)
	}
	for i := range data {
		data[i] = 0
	}
	if !bytes.Equal(msg.Value, []byte("value")) {
		t.Errorf("Value changed with the input buffer: %q", msg.Value)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, hasKey, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, hasValue, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Huge key count",
			data:        []byte{1, hasKeys, 0xff, 0xff, 0xff, 0xff}, // Claims 4 billion keys
			expectError: true,
		},
		{
			name:        "Truncated num",
			data:        []byte{1, hasNum, 0, 0, 0},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

// TestByName tests the lookup of serializers by name
func TestByName(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary", "msgpack", "cbor"} {
		if s, err := ByName(name); err != nil || s == nil {
			t.Errorf("ByName(%q) = %v, %v", name, s, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Error("Expected an error for an unknown serializer")
	}
}
