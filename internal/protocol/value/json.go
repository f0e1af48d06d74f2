package value

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"
)

// MaxDepth bounds array/object nesting accepted by ParseJSON.
const MaxDepth = 64

// ParseJSON converts a JSON document into a value tree. Object member order is
// preserved. Integers that fit 32 bits become Int32, booleans become Int8 0/1,
// and any other number keeps its literal text as a String.
func ParseJSON(data []byte) (Node, error) {
	if err := checkDepth(data); err != nil {
		return Node{}, err
	}
	if !gjson.ValidBytes(data) {
		return Node{}, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

// checkDepth rejects documents nested deeper than MaxDepth in one linear
// pass, before gjson walks them.
func checkDepth(data []byte) error {
	depth := 0
	inString, escaped := false, false
	for _, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
			if depth > MaxDepth {
				return ErrTooDeep
			}
		case ']', '}':
			depth--
		}
	}
	return nil
}

func fromResult(r gjson.Result) Node {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		if v, err := strconv.ParseInt(r.Raw, 10, 32); err == nil {
			return Int32(int32(v))
		}
		return String(r.Raw)
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := make([]Node, 0)
			r.ForEach(func(_, v gjson.Result) bool {
				items = append(items, fromResult(v))
				return true
			})
			return Node{kind: KindArray, items: items}
		}
		entries := make([]Entry, 0)
		r.ForEach(func(k, v gjson.Result) bool {
			entries = append(entries, Entry{Name: k.String(), Value: fromResult(v)})
			return true
		})
		return Node{kind: KindTable, entries: entries}
	default:
		return Null()
	}
}

// DumpJSON renders a tree as compact JSON. Duplicate table names are emitted
// as-is.
func DumpJSON(n Node) []byte {
	var buf bytes.Buffer
	appendJSON(&buf, n)
	return buf.Bytes()
}

func appendJSON(buf *bytes.Buffer, n Node) {
	switch n.kind {
	case KindInt8, KindInt16, KindInt32:
		buf.WriteString(strconv.FormatInt(int64(n.num), 10))
	case KindString:
		writeJSONString(buf, n.str)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			appendJSON(buf, item)
		}
		buf.WriteByte(']')
	case KindTable:
		buf.WriteByte('{')
		for i, e := range n.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, e.Name)
			buf.WriteByte(':')
			appendJSON(buf, e.Value)
		}
		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encoder terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
}
