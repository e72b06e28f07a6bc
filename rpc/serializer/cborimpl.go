package serializer

import (
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/fxamacker/cbor/v2"
)

// NewCBORSerializer creates a new serializer using the CBOR format (RFC 8949).
// The fields of common.Message are encoded with integer keys.
func NewCBORSerializer() (IRPCSerializer, error) {
	em, err := cbor.PreferredUnsortedEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return nil, err
	}
	return &cborSerializerImpl{enc: em, dec: dm}, nil
}

// cborSerializerImpl implements the IRPCSerializer interface using cbor encoding
type cborSerializerImpl struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (c cborSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return c.enc.Marshal(&msg)
}

func (c cborSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return c.dec.Unmarshal(b, msg)
}
