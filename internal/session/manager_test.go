package session

import (
	"errors"
	"testing"

	"github.com/danmuck/rpcgate/internal/auth"
	"github.com/danmuck/rpcgate/internal/testutil/testlog"
)

func newTestManager(t *testing.T) (*Manager, *User) {
	t.Helper()
	hash, err := auth.HashPassword("admin", "secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	admin := &User{
		Username:     "admin",
		PasswordHash: hash,
		Grants: []Grant{
			{Scope: "net", Object: "net.*", Method: "*", Level: LevelWrite},
			{Scope: "*", Object: "system", Method: "reboot", Level: LevelExec},
		},
	}
	return NewManager([]*User{admin}), admin
}

func respond(t *testing.T, u *User, token string) string {
	t.Helper()
	resp, err := auth.Response(u.PasswordHash, token)
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	return resp
}

func TestIssueChallengeFormatsPeer(t *testing.T) {
	testlog.Start(t)
	m, _ := newTestManager(t)
	if got := m.IssueChallenge(0xAABBCCDD); got != "aabbccdd" {
		t.Fatalf("unexpected token: %q", got)
	}
	if got := m.IssueChallenge(7); got != "00000007" {
		t.Fatalf("unexpected token: %q", got)
	}
}

func TestLoginSuccessCreatesUniqueSessions(t *testing.T) {
	testlog.Start(t)
	m, admin := newTestManager(t)
	token := m.IssueChallenge(1)

	s1, err := m.Login("admin", token, respond(t, admin, token))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	s2, err := m.Login("admin", token, respond(t, admin, token))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if s1.SID == "" || s1.SID == s2.SID {
		t.Fatalf("sids not unique: %q %q", s1.SID, s2.SID)
	}
	if m.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Count())
	}
	if got, ok := m.Find(s1.SID); !ok || got.User != admin {
		t.Fatalf("session not found")
	}
}

func TestLoginRegeneratesCollidingSID(t *testing.T) {
	testlog.Start(t)
	m, admin := newTestManager(t)
	ids := []string{"same", "same", "other"}
	m.newSID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	token := m.IssueChallenge(2)
	s1, _ := m.Login("admin", token, respond(t, admin, token))
	s2, err := m.Login("admin", token, respond(t, admin, token))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if s1.SID != "same" || s2.SID != "other" {
		t.Fatalf("unexpected sids: %q %q", s1.SID, s2.SID)
	}
}

func TestLoginFailuresCreateNoSession(t *testing.T) {
	testlog.Start(t)
	m, admin := newTestManager(t)
	token := m.IssueChallenge(3)

	if _, err := m.Login("admin", token, "deadbeef"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := m.Login("nobody", token, respond(t, admin, token)); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for unknown user, got %v", err)
	}
	other := m.IssueChallenge(4)
	if _, err := m.Login("admin", other, respond(t, admin, token)); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("response for another peer must fail, got %v", err)
	}
	if m.Count() != 0 {
		t.Fatalf("failed logins created %d sessions", m.Count())
	}
}

func TestLogout(t *testing.T) {
	testlog.Start(t)
	m, admin := newTestManager(t)
	token := m.IssueChallenge(5)
	s, _ := m.Login("admin", token, respond(t, admin, token))

	if err := m.Logout(s.SID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := m.Find(s.SID); ok {
		t.Fatalf("session survived logout")
	}
	if err := m.Logout(s.SID); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestAccess(t *testing.T) {
	testlog.Start(t)
	m, admin := newTestManager(t)
	token := m.IssueChallenge(6)
	s, _ := m.Login("admin", token, respond(t, admin, token))

	tests := []struct {
		name                  string
		scope, object, method string
		level                 Level
		want                  bool
	}{
		{"glob object read", "net", "net.wifi", "status", LevelRead, true},
		{"glob object write", "net", "net.wifi", "set", LevelWrite, true},
		{"level too high", "net", "net.wifi", "set", LevelExec, false},
		{"wrong scope", "sys", "net.wifi", "status", LevelRead, false},
		{"exact exec", "sys", "system", "reboot", LevelExec, true},
		{"other method", "sys", "system", "halt", LevelRead, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.Access(s, tc.scope, tc.object, tc.method, tc.level); got != tc.want {
				t.Fatalf("Access(%s,%s,%s,%s)=%v want %v", tc.scope, tc.object, tc.method, tc.level, got, tc.want)
			}
		})
	}
}

func TestAccessNilSessionDenied(t *testing.T) {
	testlog.Start(t)
	m, _ := newTestManager(t)
	if m.Access(nil, "*", "*", "*", LevelNone) {
		t.Fatalf("nil session must be denied")
	}
}

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]Level{"r": LevelRead, "W": LevelWrite, "x": LevelExec, "-": LevelNone} {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v", raw, got, err)
		}
	}
	if _, err := ParseLevel("rwx"); !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
}
