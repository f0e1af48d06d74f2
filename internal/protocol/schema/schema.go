package schema

import (
	"fmt"

	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/rs/zerolog/log"
)

// Field describes one expected child. An empty Name forces positional matching.
type Field struct {
	Name string
	Kind value.Kind
}

// Schema is an ordered list of fields extracted together.
type Schema []Field

const (
	ReasonNotComposite = "not a composite"
	ReasonMissing      = "missing required field"
	ReasonTypeMismatch = "type mismatch"
)

type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: field[%d]: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("schema: field[%d]=%q: %s", e.Index, e.Field, e.Reason)
}

// RPC envelope and per-method parameter schemas.
var (
	EnvelopeID = Schema{
		{Name: "id", Kind: value.KindAny},
	}
	Envelope = Schema{
		{Name: "id", Kind: value.KindAny},
		{Name: "method", Kind: value.KindString},
		{Name: "params", Kind: value.KindArray},
	}
	// CallParams is [sid, object, method, args].
	CallParams = Schema{
		{Kind: value.KindString},
		{Kind: value.KindString},
		{Kind: value.KindString},
		{Kind: value.KindTable},
	}
	// ListParams is [sid, path].
	ListParams = Schema{
		{Kind: value.KindString},
		{Kind: value.KindString},
	}
	// LoginParams is [username, response].
	LoginParams = Schema{
		{Kind: value.KindString},
		{Kind: value.KindString},
	}
	// SIDParams is [sid].
	SIDParams = Schema{
		{Kind: value.KindString},
	}
)

// Extract returns the children of node matched by s, in schema order.
// Either every field matches or nil is returned with a *ValidationError.
// Composite children are returned as-is; callers recurse with another Extract.
func Extract(node value.Node, s Schema) ([]value.Node, error) {
	if !value.IsComposite(node.Kind()) {
		log.Debug().Str("kind", node.Kind().String()).Msg("schema.Extract not a composite")
		return nil, &ValidationError{Index: -1, Reason: ReasonNotComposite}
	}
	out := make([]value.Node, len(s))
	byName := node.Kind() == value.KindTable
	for i, f := range s {
		var (
			child value.Node
			found bool
		)
		if byName && f.Name != "" {
			child, found = node.Lookup(f.Name)
		} else {
			child, found = node.At(i)
		}
		if !found {
			log.Debug().Int("index", i).Str("field", f.Name).Msg("schema.Extract missing field")
			return nil, &ValidationError{Index: i, Field: f.Name, Reason: ReasonMissing}
		}
		if f.Kind != value.KindAny && child.Kind() != f.Kind {
			log.Debug().
				Int("index", i).
				Str("field", f.Name).
				Str("got", child.Kind().String()).
				Str("want", f.Kind.String()).
				Msg("schema.Extract type mismatch")
			return nil, &ValidationError{Index: i, Field: f.Name, Reason: ReasonTypeMismatch}
		}
		out[i] = child
	}
	return out, nil
}

// Strings extracts a schema made only of string fields and returns their values.
func Strings(node value.Node, s Schema) ([]string, error) {
	nodes, err := Extract(node, s)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		str, err := n.Str()
		if err != nil {
			return nil, &ValidationError{Index: i, Field: s[i].Name, Reason: ReasonTypeMismatch}
		}
		out[i] = str
	}
	return out, nil
}
