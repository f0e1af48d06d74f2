// Package session tracks authenticated sessions and answers access checks.
//
// A Manager is owned by the dispatch goroutine and is not safe for
// concurrent use. Sessions never expire; they end only on Logout.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/rpcgate/internal/auth"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrAccessDenied   = errors.New("session: access denied")
	ErrUnknownSession = errors.New("session: unknown session")
)

type Session struct {
	SID       string
	User      *User
	CreatedAt time.Time
}

type Manager struct {
	users    map[string]*User
	sessions map[string]*Session

	newSID func() string
	now    func() time.Time
}

// NewManager indexes users by name; the first entry for a name wins.
func NewManager(users []*User) *Manager {
	m := &Manager{
		users:    make(map[string]*User, len(users)),
		sessions: make(map[string]*Session),
		newSID:   uuid.NewString,
		now:      time.Now,
	}
	for _, u := range users {
		if u == nil {
			continue
		}
		if _, ok := m.users[u.Username]; ok {
			log.Warn().Str("user", u.Username).Msg("session.Manager duplicate user ignored")
			continue
		}
		m.users[u.Username] = u
	}
	return m
}

// IssueChallenge returns the challenge token for a peer.
// TODO: replace the peer-derived token with a random nonce bound to the peer once clients can carry it.
func (m *Manager) IssueChallenge(peer uint32) string {
	return fmt.Sprintf("%08x", peer)
}

// Login verifies response against token for username and opens a session.
func (m *Manager) Login(username, token, response string) (*Session, error) {
	user, ok := m.users[username]
	if !ok {
		log.Debug().Str("user", username).Msg("session.Manager.Login unknown user")
		return nil, ErrAccessDenied
	}
	cr := auth.ChallengeResponse{PasswordHash: user.PasswordHash, Token: token}
	if err := cr.Validate(response); err != nil {
		log.Debug().Str("user", username).Err(err).Msg("session.Manager.Login rejected")
		return nil, ErrAccessDenied
	}

	sid := m.newSID()
	for {
		if _, taken := m.sessions[sid]; !taken {
			break
		}
		sid = m.newSID()
	}
	s := &Session{SID: sid, User: user, CreatedAt: m.now()}
	m.sessions[sid] = s
	log.Info().Str("user", username).Str("sid", sid).Msg("session.Manager.Login")
	return s, nil
}

func (m *Manager) Logout(sid string) error {
	s, ok := m.sessions[sid]
	if !ok {
		return ErrUnknownSession
	}
	delete(m.sessions, sid)
	log.Info().Str("user", s.User.Username).Str("sid", sid).Msg("session.Manager.Logout")
	return nil
}

func (m *Manager) Find(sid string) (*Session, bool) {
	s, ok := m.sessions[sid]
	return s, ok
}

// Access reports whether s holds a grant for (scope, object, method) at
// level required or above. A nil session is always denied.
func (m *Manager) Access(s *Session, scope, object, method string, required Level) bool {
	if s == nil || s.User == nil {
		return false
	}
	for _, g := range s.User.Grants {
		if g.Level >= required && g.Matches(scope, object, method) {
			return true
		}
	}
	return false
}

func (m *Manager) Count() int {
	return len(m.sessions)
}
