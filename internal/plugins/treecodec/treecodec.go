// Package treecodec converts between value trees and gopher-lua values.
//
// Encoding is strict: any unsupported value anywhere aborts the whole
// conversion. Decoding is permissive and never fails.
package treecodec

import (
	"errors"
	"fmt"

	"github.com/danmuck/rpcgate/internal/protocol/value"
	lua "github.com/yuin/gopher-lua"
)

// MaxDepth bounds table nesting so self-referencing tables cannot recurse forever.
const MaxDepth = 64

var (
	ErrUnsupportedKey   = errors.New("treecodec: unsupported table key")
	ErrUnsupportedValue = errors.New("treecodec: unsupported value")
	ErrTooDeep          = errors.New("treecodec: nesting too deep")
)

// Encode converts a Lua value into a value tree. A top level nil encodes as
// an empty Table.
func Encode(v lua.LValue) (value.Node, error) {
	if v == lua.LNil {
		return value.Table(), nil
	}
	return encode(v, 0)
}

func encode(v lua.LValue, depth int) (value.Node, error) {
	switch lv := v.(type) {
	case lua.LBool:
		return value.Bool(bool(lv)), nil
	case lua.LNumber:
		return value.Int32(int32(int64(lv))), nil
	case lua.LString:
		return value.String(string(lv)), nil
	case *lua.LUserData:
		return value.String(lv.String()), nil
	case *lua.LTable:
		if depth >= MaxDepth {
			return value.Node{}, ErrTooDeep
		}
		return encodeTable(lv, depth+1)
	default:
		return value.Node{}, fmt.Errorf("%w: %s", ErrUnsupportedValue, v.Type().String())
	}
}

type pair struct {
	key lua.LValue
	val lua.LValue
}

func encodeTable(tbl *lua.LTable, depth int) (value.Node, error) {
	// Next walks the array part first, then hash keys in insertion order.
	var pairs []pair
	isArray := true
	for k, v := tbl.Next(lua.LNil); k != lua.LNil; k, v = tbl.Next(k) {
		switch k.(type) {
		case lua.LString, lua.LNumber:
		default:
			return value.Node{}, fmt.Errorf("%w: %s", ErrUnsupportedKey, k.Type().String())
		}
		if isArray {
			n, ok := k.(lua.LNumber)
			isArray = ok && float64(n) == float64(len(pairs)+1)
		}
		pairs = append(pairs, pair{key: k, val: v})
	}

	if isArray {
		items := make([]value.Node, 0, len(pairs))
		for _, p := range pairs {
			n, err := encode(p.val, depth)
			if err != nil {
				return value.Node{}, err
			}
			items = append(items, n)
		}
		return value.Array(items...), nil
	}

	b := value.NewTableBuilder()
	for _, p := range pairs {
		n, err := encode(p.val, depth)
		if err != nil {
			return value.Node{}, err
		}
		b.Put(p.key.String(), n)
	}
	return b.Node(), nil
}

// Decode builds a Lua value from a value tree. Null and unknown kinds
// become nil.
func Decode(L *lua.LState, n value.Node) lua.LValue {
	switch n.Kind() {
	case value.KindInt8, value.KindInt16, value.KindInt32:
		i, _ := n.Int()
		return lua.LNumber(i)
	case value.KindString:
		s, _ := n.Str()
		return lua.LString(s)
	case value.KindArray:
		items := n.Items()
		tbl := L.CreateTable(len(items), 0)
		for i, item := range items {
			tbl.RawSetInt(i+1, Decode(L, item))
		}
		return tbl
	case value.KindTable:
		entries := n.Entries()
		tbl := L.CreateTable(0, len(entries))
		for _, e := range entries {
			tbl.RawSetString(e.Name, Decode(L, e.Value))
		}
		return tbl
	default:
		return lua.LNil
	}
}
