package value

import "fmt"

// Kind is the type tag of a Node.
type Kind uint8

// Kind IDs mirror the tlv type contract.
const (
	KindNull   Kind = 0
	KindInt8   Kind = 1
	KindInt16  Kind = 2
	KindInt32  Kind = 3
	KindString Kind = 4
	KindArray  Kind = 5
	KindTable  Kind = 6

	// KindAny is only meaningful in schemas; no node carries it.
	KindAny Kind = 0xff
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindTable:
		return "table"
	case KindAny:
		return "any"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsInt reports whether k is one of the integer leaf kinds.
func IsInt(k Kind) bool {
	return k == KindInt8 || k == KindInt16 || k == KindInt32
}

// IsComposite reports whether k holds children.
func IsComposite(k Kind) bool {
	return k == KindArray || k == KindTable
}

// Entry is one named child of a table.
type Entry struct {
	Name  string
	Value Node
}

// Node is one element of a value tree. The zero Node is Null.
type Node struct {
	kind    Kind
	num     int32
	str     string
	items   []Node
	entries []Entry
}

func Null() Node { return Node{} }

func Int8(v int8) Node { return Node{kind: KindInt8, num: int32(v)} }

func Int16(v int16) Node { return Node{kind: KindInt16, num: int32(v)} }

func Int32(v int32) Node { return Node{kind: KindInt32, num: v} }

func String(v string) Node { return Node{kind: KindString, str: v} }

// Bool encodes v as a one byte integer.
func Bool(v bool) Node {
	if v {
		return Int8(1)
	}
	return Int8(0)
}

// Array builds an array node. The items slice is copied.
func Array(items ...Node) Node {
	out := make([]Node, len(items))
	copy(out, items)
	return Node{kind: KindArray, items: out}
}

// Table builds a table node in the given entry order. The entries slice is copied.
func Table(entries ...Entry) Node {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return Node{kind: KindTable, entries: out}
}

// E is shorthand for a table entry.
func E(name string, v Node) Entry {
	return Entry{Name: name, Value: v}
}

func (n Node) Kind() Kind { return n.kind }

func (n Node) IsNull() bool { return n.kind == KindNull }

// Int returns the value of an integer leaf.
func (n Node) Int() (int64, error) {
	if !IsInt(n.kind) {
		return 0, ErrKindMismatch
	}
	return int64(n.num), nil
}

// Str returns the value of a string leaf.
func (n Node) Str() (string, error) {
	if n.kind != KindString {
		return "", ErrKindMismatch
	}
	return n.str, nil
}

// Len returns the number of children of a composite, 0 for leaves.
func (n Node) Len() int {
	switch n.kind {
	case KindArray:
		return len(n.items)
	case KindTable:
		return len(n.entries)
	default:
		return 0
	}
}

// At returns the i-th child of a composite in order. For tables this is the
// entry value, ignoring its name.
func (n Node) At(i int) (Node, bool) {
	if i < 0 || i >= n.Len() {
		return Node{}, false
	}
	if n.kind == KindArray {
		return n.items[i], true
	}
	return n.entries[i].Value, true
}

// Lookup scans a table for the first entry named name.
func (n Node) Lookup(name string) (Node, bool) {
	if n.kind != KindTable {
		return Node{}, false
	}
	for _, e := range n.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return Node{}, false
}

// Items returns a copy of an array's children.
func (n Node) Items() []Node {
	if n.kind != KindArray {
		return nil
	}
	out := make([]Node, len(n.items))
	copy(out, n.items)
	return out
}

// Entries returns a copy of a table's entries in insertion order.
func (n Node) Entries() []Entry {
	if n.kind != KindTable {
		return nil
	}
	out := make([]Entry, len(n.entries))
	copy(out, n.entries)
	return out
}

// Equal compares two trees structurally, including table order.
func Equal(a, b Node) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindInt8, KindInt16, KindInt32:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindTable:
		if len(a.entries) != len(b.entries) {
			return false
		}
		for i := range a.entries {
			if a.entries[i].Name != b.entries[i].Name || !Equal(a.entries[i].Value, b.entries[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// TableBuilder appends entries in order and produces a table node.
type TableBuilder struct {
	entries []Entry
}

func NewTableBuilder() *TableBuilder {
	return &TableBuilder{entries: make([]Entry, 0)}
}

func (b *TableBuilder) Put(name string, v Node) *TableBuilder {
	b.entries = append(b.entries, Entry{Name: name, Value: v})
	return b
}

func (b *TableBuilder) Len() int { return len(b.entries) }

func (b *TableBuilder) Node() Node {
	return Table(b.entries...)
}
