package plugins

import (
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/danmuck/rpcgate/internal/session"
)

// Sessions is the slice of the session manager that plugin calls need.
type Sessions interface {
	Find(sid string) (*session.Session, bool)
	Access(s *session.Session, scope, object, method string, required session.Level) bool
}

// CallContext carries the caller's session into a plugin call. It is built
// per call; objects must not retain it.
type CallContext struct {
	Session  *session.Session
	Sessions Sessions
}

// Object is a named collection of callable methods.
type Object interface {
	Name() string
	Scope() string
	Methods() []string
	Signature() value.Node
	// Permission returns the level a caller needs for method, or false when
	// the object has no such method.
	Permission(method string) (session.Level, bool)
	Call(ctx CallContext, method string, args value.Node) (value.Node, error)
}

// Runtime turns a plugin file into an Object.
type Runtime interface {
	Load(name, path string) (Object, error)
}
