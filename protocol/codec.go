package protocol

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/maxkra/sasshost/errors"
)

// The codec uses core-deterministic CBOR so a message always encodes to the
// same bytes regardless of map iteration order.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeMessage serializes a message to frame payload bytes.
func EncodeMessage(msg *Message) ([]byte, error) {
	if msg.Kind == KindInvalid {
		return nil, errors.Protocol("cannot encode message with no kind")
	}
	data, err := encMode.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s message", msg.Kind)
	}
	return data, nil
}

// DecodeMessage deserializes one frame payload. A payload that does not
// parse, or that parses to an unknown kind, is a protocol error.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := decMode.Unmarshal(data, &msg); err != nil {
		return nil, errors.Protocol("undecodable message: %v", err)
	}
	if msg.Kind == KindInvalid || msg.Kind > KindLogEvent {
		return nil, errors.Protocol("unknown message kind %d", msg.Kind)
	}
	return &msg, nil
}
