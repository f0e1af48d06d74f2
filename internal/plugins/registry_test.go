package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/danmuck/rpcgate/internal/auth"
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/danmuck/rpcgate/internal/session"
	"github.com/danmuck/rpcgate/internal/testutil/testlog"
)

type stubObject struct {
	name    string
	scope   string
	methods map[string]session.Level
	err     error
	calls   int
}

func (o *stubObject) Name() string  { return o.name }
func (o *stubObject) Scope() string { return o.scope }

func (o *stubObject) Methods() []string {
	out := make([]string, 0, len(o.methods))
	for m := range o.methods {
		out = append(out, m)
	}
	return out
}

func (o *stubObject) Signature() value.Node {
	return value.Table(value.E("status", value.Table()))
}

func (o *stubObject) Permission(method string) (session.Level, bool) {
	l, ok := o.methods[method]
	return l, ok
}

func (o *stubObject) Call(ctx CallContext, method string, args value.Node) (value.Node, error) {
	o.calls++
	if o.err != nil {
		return value.Node{}, o.err
	}
	return value.Table(
		value.E("user", value.String(ctx.Session.User.Username)),
		value.E("method", value.String(method)),
	), nil
}

type stubRuntime struct{}

func (stubRuntime) Load(name, path string) (Object, error) {
	if filepath.Base(path) == "broken.lua" {
		return nil, errors.New("syntax error")
	}
	return &stubObject{name: name, scope: name, methods: map[string]session.Level{"status": session.LevelRead}}, nil
}

func newSessions(t *testing.T) (*session.Manager, string) {
	t.Helper()
	hash, err := auth.HashPassword("ops", "pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &session.User{
		Username:     "ops",
		PasswordHash: hash,
		Grants: []session.Grant{
			{Scope: "net", Object: "*", Method: "*", Level: session.LevelRead},
		},
	}
	m := session.NewManager([]*session.User{user})
	token := m.IssueChallenge(1)
	resp, _ := auth.Response(hash, token)
	s, err := m.Login("ops", token, resp)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return m, s.SID
}

func TestRegisterRejectsDuplicateAndInvalid(t *testing.T) {
	testlog.Start(t)
	sessions, _ := newSessions(t)
	reg := NewRegistry(sessions)

	if err := reg.Register(&stubObject{name: "net.wifi"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(&stubObject{name: "net.wifi"}); !errors.Is(err, ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}
	if err := reg.Register(&stubObject{name: "Net..Wifi"}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if err := reg.Register(nil); !errors.Is(err, ErrObjectNil) {
		t.Fatalf("expected ErrObjectNil, got %v", err)
	}
}

func TestNamesSortedAndList(t *testing.T) {
	testlog.Start(t)
	sessions, _ := newSessions(t)
	reg := NewRegistry(sessions)
	for _, n := range []string{"sys.time", "net.wifi", "net.eth", "auth"} {
		if err := reg.Register(&stubObject{name: n}); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}
	if got, want := reg.Names(), []string{"auth", "net.eth", "net.wifi", "sys.time"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names=%v want %v", got, want)
	}
	if got, want := reg.List("net.*"), []string{"net.eth", "net.wifi"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("list=%v want %v", got, want)
	}
	if got := reg.List(""); len(got) != 4 {
		t.Fatalf("empty pattern should list all, got %v", got)
	}
}

func TestLoadScansRecursively(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	files := []string{"net/wifi.lua", "net/eth.lua", "system.lua", "broken.lua", "Bad Name.lua", "notes.txt"}
	for _, f := range files {
		p := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("return {}"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	sessions, _ := newSessions(t)
	reg := NewRegistry(sessions)
	n, err := reg.Load(dir, stubRuntime{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 objects, got %d (%v)", n, reg.Names())
	}
	if _, ok := reg.Resolve("net.wifi"); !ok {
		t.Fatalf("net.wifi not registered")
	}
}

func TestLoadMissingDir(t *testing.T) {
	testlog.Start(t)
	sessions, _ := newSessions(t)
	reg := NewRegistry(sessions)
	if _, err := reg.Load(filepath.Join(t.TempDir(), "absent"), stubRuntime{}); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestInvokeOrderOfChecks(t *testing.T) {
	testlog.Start(t)
	sessions, sid := newSessions(t)
	reg := NewRegistry(sessions)
	wifi := &stubObject{name: "net.wifi", scope: "net", methods: map[string]session.Level{
		"status": session.LevelRead,
		"set":    session.LevelWrite,
	}}
	if err := reg.Register(wifi); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name           string
		sid, obj, meth string
		want           Errno
	}{
		{"unknown session", "nope", "net.wifi", "status", ErrnoAccess},
		{"unknown object", sid, "net.eth", "status", ErrnoNotFound},
		{"unknown method", sid, "net.wifi", "scan", ErrnoNotFound},
		{"insufficient level", sid, "net.wifi", "set", ErrnoAccess},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Invoke(tc.sid, tc.obj, tc.meth, value.Table())
			var errno Errno
			if !errors.As(err, &errno) || errno != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if wifi.calls != 0 {
		t.Fatalf("denied calls reached the object")
	}

	out, err := reg.Invoke(sid, "net.wifi", "status", value.Table())
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	u, _ := out.Lookup("user")
	if name, _ := u.Str(); name != "ops" {
		t.Fatalf("session not passed to object: %s", value.DumpJSON(out))
	}
}

func TestInvokeMapsCallErrors(t *testing.T) {
	testlog.Start(t)
	sessions, sid := newSessions(t)
	reg := NewRegistry(sessions)
	obj := &stubObject{name: "net.dns", scope: "net", methods: map[string]session.Level{"status": session.LevelRead}}
	_ = reg.Register(obj)

	obj.err = ErrnoBusy
	if _, err := reg.Invoke(sid, "net.dns", "status", value.Table()); !errors.Is(err, ErrnoBusy) {
		t.Fatalf("expected EBUSY, got %v", err)
	}
	obj.err = errors.New("boom")
	if _, err := reg.Invoke(sid, "net.dns", "status", value.Table()); !errors.Is(err, ErrnoIO) {
		t.Fatalf("expected EIO, got %v", err)
	}
}

func TestListingFiltersByVisibility(t *testing.T) {
	testlog.Start(t)
	sessions, sid := newSessions(t)
	reg := NewRegistry(sessions)
	_ = reg.Register(&stubObject{name: "net.wifi", scope: "net", methods: map[string]session.Level{"status": session.LevelRead}})
	_ = reg.Register(&stubObject{name: "sys.reboot", scope: "sys", methods: map[string]session.Level{"run": session.LevelExec}})

	got := reg.Listing(sid, "*")
	if got.Len() != 1 {
		t.Fatalf("expected one visible object, got %s", value.DumpJSON(got))
	}
	if _, ok := got.Lookup("net.wifi"); !ok {
		t.Fatalf("net.wifi missing from listing")
	}
	if reg.Listing("nope", "*").Len() != 0 {
		t.Fatalf("unknown session must see nothing")
	}
}

func TestErrnoString(t *testing.T) {
	if ErrnoString(ErrnoAccess) != "EACCESS" || ErrnoString(ErrnoTimedOut) != "ETIMEDOUT" {
		t.Fatalf("unexpected errno names")
	}
	if ErrnoString(Errno(99)) != "UNKNOWN" || ErrnoString(errors.New("x")) != "UNKNOWN" {
		t.Fatalf("unmapped codes must render UNKNOWN")
	}
	if ObjectName(filepath.Join("net", "wifi.lua")) != "net.wifi" {
		t.Fatalf("unexpected object name")
	}
}
