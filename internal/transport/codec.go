package transport

import (
	"fmt"

	"github.com/danmuck/rpcgate/internal/protocol/frame"
	"github.com/danmuck/rpcgate/internal/protocol/tlv"
	"github.com/danmuck/rpcgate/internal/protocol/value"
)

// DecodePayload parses one message body in the given encoding.
func DecodePayload(enc frame.Encoding, payload []byte) (value.Node, error) {
	switch enc {
	case frame.EncodingJSON:
		return value.ParseJSON(payload)
	case frame.EncodingTLV:
		return tlv.Decode(payload)
	default:
		return value.Node{}, fmt.Errorf("%w: %s", frame.ErrUnsupportedEncoding, enc)
	}
}

// EncodePayload renders n in the given encoding.
func EncodePayload(enc frame.Encoding, n value.Node) ([]byte, error) {
	switch enc {
	case frame.EncodingJSON:
		return value.DumpJSON(n), nil
	case frame.EncodingTLV:
		return tlv.Encode(n), nil
	default:
		return nil, fmt.Errorf("%w: %s", frame.ErrUnsupportedEncoding, enc)
	}
}
