package value

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rpcgate/internal/testutil/testlog"
)

func TestParseJSONPreservesOrderAndKinds(t *testing.T) {
	testlog.Start(t)
	n, err := ParseJSON([]byte(`{"id":7,"method":"call","params":["sid",true,null,1.5],"z":{}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Table(
		E("id", Int32(7)),
		E("method", String("call")),
		E("params", Array(String("sid"), Int8(1), Null(), String("1.5"))),
		E("z", Table()),
	)
	if !Equal(n, want) {
		t.Fatalf("unexpected tree: %s", DumpJSON(n))
	}
}

func TestParseJSONLargeIntegerKeepsLiteral(t *testing.T) {
	testlog.Start(t)
	n, err := ParseJSON([]byte(`[4294967296]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	first, _ := n.At(0)
	if s, err := first.Str(); err != nil || s != "4294967296" {
		t.Fatalf("expected literal string, got %q err=%v", s, err)
	}
}

func TestParseJSONInvalid(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseJSON([]byte(`{"id":`)); !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestDumpJSON(t *testing.T) {
	testlog.Start(t)
	n := Table(
		E("jsonrpc", String("2.0")),
		E("id", Int32(5)),
		E("error", String("Invalid <Method>")),
		E("list", Array(Int8(-1), Null())),
	)
	got := string(DumpJSON(n))
	want := `{"jsonrpc":"2.0","id":5,"error":"Invalid <Method>","list":[-1,null]}`
	if got != want {
		t.Fatalf("dump mismatch:\n got=%s\nwant=%s", got, want)
	}
}

func TestParseJSONDepthLimit(t *testing.T) {
	testlog.Start(t)
	nested := func(d int) []byte {
		return []byte(strings.Repeat("[", d) + strings.Repeat("]", d))
	}
	if _, err := ParseJSON(nested(MaxDepth)); err != nil {
		t.Fatalf("depth %d rejected: %v", MaxDepth, err)
	}
	if _, err := ParseJSON(nested(MaxDepth + 1)); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}
	// brackets inside strings do not count
	doc := []byte(`{"s":"` + strings.Repeat("[", 200) + `\"{"}`)
	if _, err := ParseJSON(doc); err != nil {
		t.Fatalf("string content counted as nesting: %v", err)
	}

	start := time.Now()
	if _, err := ParseJSON(nested(4 << 20)); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("deep document took %v to reject", took)
	}
}
