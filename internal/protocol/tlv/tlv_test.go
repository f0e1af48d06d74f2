package tlv

import (
	"errors"
	"testing"

	"github.com/danmuck/rpcgate/internal/protocol/value"
)

func TestEncodeDecodeRoundTripPreservesOrderAndKinds(t *testing.T) {
	in := value.Table(
		value.E("id", value.Int32(-42)),
		value.E("method", value.String("call")),
		value.E("params", value.Array(
			value.String("sid"),
			value.Int8(-1),
			value.Int16(300),
			value.Null(),
			value.Table(value.E("dup", value.Int8(1)), value.E("dup", value.Int8(2))),
		)),
	)
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !value.Equal(in, out) {
		t.Fatalf("round trip mismatch: %s", value.DumpJSON(out))
	}
}

func TestEncodeLeafLayout(t *testing.T) {
	got := Encode(value.Int16(0x0102))
	want := []byte{TypeInt16, 0, 0, 0, 2, 0x01, 0x02}
	if string(got) != string(want) {
		t.Fatalf("unexpected bytes: %v", got)
	}
}

func TestDecodeMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeMalformedLengthIsDeterministic(t *testing.T) {
	// type=string, len=5, value only 2 bytes
	payload := []byte{TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := Decode(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestDecodeRejectsBadIntWidth(t *testing.T) {
	_, err := Decode([]byte{TypeInt32, 0, 0, 0, 1, 7})
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestDecodeRejectsNonStringTableKey(t *testing.T) {
	key := Encode(value.Int8(1))
	val := Encode(value.Int8(2))
	body := append(append([]byte{}, key...), val...)
	payload := append([]byte{TypeTable, 0, 0, 0, byte(len(body))}, body...)
	_, err := Decode(payload)
	if !errors.Is(err, ErrTableKey) {
		t.Fatalf("expected ErrTableKey, got %v", err)
	}
}

func TestDecodeRejectsUnknownTypeAndTrailingBytes(t *testing.T) {
	if _, err := Decode([]byte{0x7f, 0, 0, 0, 0}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	payload := append(Encode(value.Null()), 0x00)
	if _, err := Decode(payload); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}
