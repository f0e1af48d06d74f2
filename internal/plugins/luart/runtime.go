// Package luart loads plugin objects from Lua files using gopher-lua.
//
// A plugin file returns a module table. Every function under a string key
// not starting with "_" is a callable method. Optional module fields:
//
//	_scope   string               access scope, defaults to the object name
//	_access  {method = "r|w|x"}   required level per method, default "x"
//	_args    {method = {...}}     argument description copied into the signature
//
// Methods are called as fn(ctx, args) and return result[, code]. A negative
// code is reported as the matching errno.
package luart

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/rpcgate/internal/plugins"
	"github.com/danmuck/rpcgate/internal/plugins/treecodec"
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/danmuck/rpcgate/internal/session"
	"github.com/danmuck/rpcgate/internal/tools"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

var (
	ErrNotModule     = errors.New("luart: plugin did not return a table")
	ErrInvalidAccess = errors.New("luart: invalid _access entry")
)

type Options struct {
	// AllowFileWrite publishes fs.writeFragment to plugins.
	AllowFileWrite bool
	// Exec, when set, publishes sys.exec backed by this runner.
	Exec tools.CommandRunner
}

// Runtime implements plugins.Runtime. Each loaded object owns its own state.
type Runtime struct {
	opts    Options
	objects []*Object
}

func NewRuntime(opts Options) *Runtime {
	return &Runtime{opts: opts}
}

func (rt *Runtime) Load(name, path string) (plugins.Object, error) {
	L := lua.NewState()
	openHostAPI(L, rt.opts)

	fn, err := L.LoadFile(path)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("luart: load %s: %w", path, err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("luart: run %s: %w", path, err)
	}
	module, ok := L.Get(-1).(*lua.LTable)
	L.Pop(1)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotModule, path)
	}

	obj, err := newObject(L, name, module)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("luart: %s: %w", path, err)
	}
	rt.objects = append(rt.objects, obj)
	return obj, nil
}

// Close releases every state created by Load.
func (rt *Runtime) Close() {
	for _, obj := range rt.objects {
		obj.L.Close()
	}
	rt.objects = nil
}

// Object is one loaded plugin file.
type Object struct {
	L      *lua.LState
	name   string
	scope  string
	module *lua.LTable

	methods   []string
	access    map[string]session.Level
	signature value.Node
}

func newObject(L *lua.LState, name string, module *lua.LTable) (*Object, error) {
	obj := &Object{
		L:      L,
		name:   name,
		scope:  name,
		module: module,
		access: make(map[string]session.Level),
	}
	if s, ok := module.RawGetString("_scope").(lua.LString); ok && s != "" {
		obj.scope = string(s)
	}

	module.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok || strings.HasPrefix(string(key), "_") {
			return
		}
		if _, ok := v.(*lua.LFunction); ok {
			obj.methods = append(obj.methods, string(key))
			obj.access[string(key)] = session.LevelExec
		}
	})
	sort.Strings(obj.methods)

	if tbl, ok := module.RawGetString("_access").(*lua.LTable); ok {
		var accessErr error
		tbl.ForEach(func(k, v lua.LValue) {
			method := k.String()
			if _, known := obj.access[method]; !known || accessErr != nil {
				return
			}
			level, err := session.ParseLevel(v.String())
			if err != nil {
				accessErr = fmt.Errorf("%w: %s=%s", ErrInvalidAccess, method, v.String())
				return
			}
			obj.access[method] = level
		})
		if accessErr != nil {
			return nil, accessErr
		}
	}

	args, _ := module.RawGetString("_args").(*lua.LTable)
	b := value.NewTableBuilder()
	for _, m := range obj.methods {
		sig := value.Table()
		if args != nil {
			if desc := args.RawGetString(m); desc != lua.LNil {
				if n, err := treecodec.Encode(desc); err == nil {
					sig = n
				}
			}
		}
		b.Put(m, sig)
	}
	obj.signature = b.Node()
	return obj, nil
}

func (o *Object) Name() string          { return o.name }
func (o *Object) Scope() string         { return o.scope }
func (o *Object) Methods() []string     { return append([]string(nil), o.methods...) }
func (o *Object) Signature() value.Node { return o.signature }

func (o *Object) Permission(method string) (session.Level, bool) {
	level, ok := o.access[method]
	return level, ok
}

func (o *Object) Call(ctx plugins.CallContext, method string, args value.Node) (value.Node, error) {
	fn, ok := o.module.RawGetString(method).(*lua.LFunction)
	if !ok {
		return value.Node{}, plugins.ErrnoNotFound
	}

	L := o.L
	err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, o.newContext(ctx), treecodec.Decode(L, args))
	if err != nil {
		log.Warn().Str("object", o.name).Str("method", method).Err(err).Msg("luart.Object.Call")
		return value.Node{}, fmt.Errorf("%w: %v", plugins.ErrnoIO, err)
	}
	ret, code := L.Get(-2), L.Get(-1)
	L.Pop(2)

	if n, ok := code.(lua.LNumber); ok && n < 0 {
		return value.Node{}, plugins.Errno(-int(n))
	}
	out, err := treecodec.Encode(ret)
	if err != nil {
		log.Warn().Str("object", o.name).Str("method", method).Err(err).Msg("luart.Object.Call encode")
		return value.Node{}, plugins.ErrnoFault
	}
	return out, nil
}

// newContext builds the per-call ctx table handed to the method.
func (o *Object) newContext(ctx plugins.CallContext) *lua.LTable {
	L := o.L
	t := L.NewTable()
	if ctx.Session == nil {
		return t
	}
	username := ""
	if ctx.Session.User != nil {
		username = ctx.Session.User.Username
	}
	t.RawSetString("sid", lua.LString(ctx.Session.SID))
	t.RawSetString("username", lua.LString(username))
	// A plugin may keep ctx past the call; re-resolve the session so a
	// logged out sid stops answering.
	live := func() (*session.Session, bool) {
		if ctx.Sessions == nil {
			return nil, false
		}
		s, ok := ctx.Sessions.Find(ctx.Session.SID)
		return s, ok && s == ctx.Session
	}
	t.RawSetString("access", L.NewFunction(func(L *lua.LState) int {
		scope := L.CheckString(1)
		object := L.CheckString(2)
		method := L.CheckString(3)
		level, err := session.ParseLevel(L.CheckString(4))
		s, ok := live()
		if err != nil || !ok {
			L.Push(lua.LFalse)
			return 1
		}
		L.Push(lua.LBool(ctx.Sessions.Access(s, scope, object, method, level)))
		return 1
	}))
	t.RawSetString("get", L.NewFunction(func(L *lua.LState) int {
		if _, ok := live(); !ok {
			L.Push(lua.LNil)
			return 1
		}
		info := L.NewTable()
		info.RawSetString("username", lua.LString(username))
		info.RawSetString("sid", lua.LString(ctx.Session.SID))
		L.Push(info)
		return 1
	}))
	return t
}
