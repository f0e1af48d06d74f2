package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/rpcgate/internal/protocol/value"
)

// HeaderLen is type(1) + length(4).
const HeaderLen = 5

// MaxDepth bounds composite nesting on decode.
const MaxDepth = 64

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrUnknownType      = errors.New("tlv: unknown type")
	ErrInvalidLength    = errors.New("tlv: invalid length")
	ErrTableKey         = errors.New("tlv: table key is not a string")
	ErrTooDeep          = errors.New("tlv: nesting too deep")
	ErrTrailingBytes    = errors.New("tlv: trailing bytes after root")
)

// Type IDs from tlv contract. They share numbering with value.Kind.
const (
	TypeNull   uint8 = uint8(value.KindNull)
	TypeInt8   uint8 = uint8(value.KindInt8)
	TypeInt16  uint8 = uint8(value.KindInt16)
	TypeInt32  uint8 = uint8(value.KindInt32)
	TypeString uint8 = uint8(value.KindString)
	TypeArray  uint8 = uint8(value.KindArray)
	TypeTable  uint8 = uint8(value.KindTable)
)

// Encode serializes one node tree. Table entries are written as a string key
// node followed by the value node.
func Encode(n value.Node) []byte {
	return appendNode(make([]byte, 0, 64), n)
}

func appendNode(out []byte, n value.Node) []byte {
	start := len(out)
	out = append(out, uint8(n.Kind()), 0, 0, 0, 0)
	switch n.Kind() {
	case value.KindInt8:
		v, _ := n.Int()
		out = append(out, byte(int8(v)))
	case value.KindInt16:
		v, _ := n.Int()
		out = binary.BigEndian.AppendUint16(out, uint16(int16(v)))
	case value.KindInt32:
		v, _ := n.Int()
		out = binary.BigEndian.AppendUint32(out, uint32(int32(v)))
	case value.KindString:
		s, _ := n.Str()
		out = append(out, s...)
	case value.KindArray:
		for _, item := range n.Items() {
			out = appendNode(out, item)
		}
	case value.KindTable:
		for _, e := range n.Entries() {
			out = appendNode(out, value.String(e.Name))
			out = appendNode(out, e.Value)
		}
	}
	binary.BigEndian.PutUint32(out[start+1:start+HeaderLen], uint32(len(out)-start-HeaderLen))
	return out
}

// Decode parses exactly one node tree from payload.
func Decode(payload []byte) (value.Node, error) {
	n, used, err := decodeNode(payload, 0)
	if err != nil {
		return value.Node{}, err
	}
	if used != len(payload) {
		return value.Node{}, ErrTrailingBytes
	}
	return n, nil
}

func decodeNode(payload []byte, depth int) (value.Node, int, error) {
	if depth > MaxDepth {
		return value.Node{}, 0, ErrTooDeep
	}
	if len(payload) < HeaderLen {
		return value.Node{}, 0, ErrShortFieldHeader
	}
	typeID := payload[0]
	l := binary.BigEndian.Uint32(payload[1:HeaderLen])
	if uint64(len(payload)-HeaderLen) < uint64(l) {
		return value.Node{}, 0, ErrShortFieldValue
	}
	body := payload[HeaderLen : HeaderLen+int(l)]
	used := HeaderLen + int(l)

	switch typeID {
	case TypeNull:
		if l != 0 {
			return value.Node{}, 0, fmt.Errorf("%w: null with %d bytes", ErrInvalidLength, l)
		}
		return value.Null(), used, nil
	case TypeInt8:
		if l != 1 {
			return value.Node{}, 0, fmt.Errorf("%w: int8 with %d bytes", ErrInvalidLength, l)
		}
		return value.Int8(int8(body[0])), used, nil
	case TypeInt16:
		if l != 2 {
			return value.Node{}, 0, fmt.Errorf("%w: int16 with %d bytes", ErrInvalidLength, l)
		}
		return value.Int16(int16(binary.BigEndian.Uint16(body))), used, nil
	case TypeInt32:
		if l != 4 {
			return value.Node{}, 0, fmt.Errorf("%w: int32 with %d bytes", ErrInvalidLength, l)
		}
		return value.Int32(int32(binary.BigEndian.Uint32(body))), used, nil
	case TypeString:
		return value.String(string(body)), used, nil
	case TypeArray:
		items := make([]value.Node, 0)
		for i := 0; i < len(body); {
			child, n, err := decodeNode(body[i:], depth+1)
			if err != nil {
				return value.Node{}, 0, err
			}
			items = append(items, child)
			i += n
		}
		return value.Array(items...), used, nil
	case TypeTable:
		b := value.NewTableBuilder()
		for i := 0; i < len(body); {
			key, n, err := decodeNode(body[i:], depth+1)
			if err != nil {
				return value.Node{}, 0, err
			}
			name, err := key.Str()
			if err != nil {
				return value.Node{}, 0, ErrTableKey
			}
			i += n
			child, n, err := decodeNode(body[i:], depth+1)
			if err != nil {
				return value.Node{}, 0, err
			}
			b.Put(name, child)
			i += n
		}
		return b.Node(), used, nil
	default:
		return value.Node{}, 0, fmt.Errorf("%w: %d", ErrUnknownType, typeID)
	}
}
