package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/rpcgate/internal/protocol/tlv"
	"github.com/danmuck/rpcgate/internal/protocol/value"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := tlv.Encode(value.Table(value.E("method", value.String("challenge"))))
	in := Frame{
		Header:  Header{Encoding: EncodingTLV, Flags: FlagIsResponse},
		Payload: payload,
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.Encoding != EncodingTLV || out.Header.Flags != FlagIsResponse {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameRejectsBadMagicAndEncoding(t *testing.T) {
	buf := EncodeHeader(Header{Magic: 1, Version: Version, Encoding: EncodingJSON})
	if _, err := ReadFrame(bytes.NewReader(buf), DefaultLimits()); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	buf = EncodeHeader(Header{Magic: Magic, Version: Version, Encoding: 9})
	if _, err := ReadFrame(bytes.NewReader(buf), DefaultLimits()); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("expected ErrUnsupportedEncoding, got %v", err)
	}
}

func TestPayloadLimits(t *testing.T) {
	limits := Limits{MaxPayloadBytes: 4}
	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{Header: Header{Encoding: EncodingJSON}, Payload: []byte("12345")}, limits)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on write, got %v", err)
	}
	hdr := EncodeHeader(Header{Magic: Magic, Version: Version, Encoding: EncodingJSON, PayloadLen: 5})
	if _, err := ReadFrame(bytes.NewReader(hdr), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on read, got %v", err)
	}
}
