package gateway

import (
	"errors"
	"time"

	"github.com/danmuck/rpcgate/internal/observability"
	"github.com/danmuck/rpcgate/internal/plugins"
	"github.com/danmuck/rpcgate/internal/protocol/schema"
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/danmuck/rpcgate/internal/session"
	"github.com/rs/zerolog/log"
)

// Reply error strings. Callers match on these exact values.
const (
	ErrTextInvalidMethod = "Invalid Method"
	ErrTextInvalidParams = "Invalid Parameters"
	ErrTextLoginFailed   = "EACCESS"
	ErrTextLogoutFailed  = "Could not logout!"
	ErrTextAccessDenied  = "Access Denied"

	JSONRPCVersion = "2.0"
)

// RPC method names.
const (
	MethodCall         = "call"
	MethodList         = "list"
	MethodChallenge    = "challenge"
	MethodLogin        = "login"
	MethodLogout       = "logout"
	MethodAuthenticate = "authenticate"
)

// Dispatcher validates one request envelope and routes it. It keeps no
// state between requests beyond what the session manager and registry own.
type Dispatcher struct {
	sessions *session.Manager
	registry *plugins.Registry
}

func NewDispatcher(sessions *session.Manager, registry *plugins.Registry) *Dispatcher {
	return &Dispatcher{sessions: sessions, registry: registry}
}

type outcome struct {
	result value.Node
	err    string
}

func succeed(n value.Node) outcome { return outcome{result: n} }

func fail(text string) outcome { return outcome{err: text} }

func (o outcome) failed() bool { return o.err != "" }

func (o outcome) label() string {
	if o.failed() {
		return "error"
	}
	return "result"
}

// Handle answers msg from peer. It returns false when the message has no id
// and must be dropped without a reply.
func (d *Dispatcher) Handle(peer uint32, msg value.Node) (value.Node, bool) {
	start := time.Now()
	ids, err := schema.Extract(msg, schema.EnvelopeID)
	if err != nil {
		log.Debug().Uint32("peer", peer).Err(err).Msg("gateway.Dispatcher.Handle dropped")
		observability.RecordRPC("none", "dropped", time.Since(start))
		return value.Node{}, false
	}
	id := ids[0]

	env, err := schema.Extract(msg, schema.Envelope)
	if err != nil {
		log.Debug().Uint32("peer", peer).Err(err).Msg("gateway.Dispatcher.Handle invalid envelope")
		observability.RecordRPC("none", "error", time.Since(start))
		return reply(id, fail(ErrTextInvalidMethod)), true
	}
	method, _ := env[1].Str()
	params := env[2]

	var out outcome
	switch method {
	case MethodCall:
		out = d.call(params)
	case MethodList:
		out = d.list(params)
	case MethodChallenge:
		out = d.challenge(peer)
	case MethodLogin:
		out = d.login(peer, params)
	case MethodLogout:
		out = d.logout(params)
	case MethodAuthenticate:
		out = d.authenticate(params)
	default:
		out = fail(ErrTextInvalidMethod)
		method = "other"
	}

	log.Debug().
		Uint32("peer", peer).
		Str("method", method).
		Str("outcome", out.label()).
		Str("error", out.err).
		Dur("took", time.Since(start)).
		Msg("gateway.Dispatcher.Handle")
	observability.RecordRPC(method, out.label(), time.Since(start))
	return reply(id, out), true
}

func reply(id value.Node, out outcome) value.Node {
	b := value.NewTableBuilder().
		Put("jsonrpc", value.String(JSONRPCVersion)).
		Put("id", id)
	if out.failed() {
		b.Put("error", value.String(out.err))
	} else {
		b.Put("result", out.result)
	}
	return b.Node()
}

func (d *Dispatcher) call(params value.Node) outcome {
	p, err := schema.Extract(params, schema.CallParams)
	if err != nil {
		return fail(ErrTextInvalidParams)
	}
	sid, _ := p[0].Str()
	object, _ := p[1].Str()
	method, _ := p[2].Str()

	start := time.Now()
	res, err := d.registry.Invoke(sid, object, method, p[3])
	result := "ok"
	if err != nil {
		result = plugins.ErrnoString(err)
	}
	observability.RecordPluginCall(object, method, result, time.Since(start))
	if err != nil {
		return fail(result)
	}
	return succeed(res)
}

// list answers with {object: signature}. Missing or malformed params yield
// an empty listing rather than an error.
func (d *Dispatcher) list(params value.Node) outcome {
	if p, err := schema.Strings(params, schema.ListParams); err == nil {
		return succeed(d.registry.Listing(p[0], p[1]))
	}
	if p, err := schema.Strings(params, schema.SIDParams); err == nil {
		return succeed(d.registry.Listing(p[0], "*"))
	}
	return succeed(value.Table())
}

func (d *Dispatcher) challenge(peer uint32) outcome {
	token := d.sessions.IssueChallenge(peer)
	return succeed(value.Table(value.E("token", value.String(token))))
}

func (d *Dispatcher) login(peer uint32, params value.Node) outcome {
	p, err := schema.Strings(params, schema.LoginParams)
	if err != nil {
		return fail(plugins.ErrnoInvalid.Error())
	}
	token := d.sessions.IssueChallenge(peer)
	s, err := d.sessions.Login(p[0], token, p[1])
	if err != nil {
		if !errors.Is(err, session.ErrAccessDenied) {
			log.Warn().Err(err).Msg("gateway.Dispatcher.login")
		}
		return fail(ErrTextLoginFailed)
	}
	observability.SetActiveSessions(d.sessions.Count())
	return succeed(value.Table(value.E("success", value.String(s.SID))))
}

func (d *Dispatcher) logout(params value.Node) outcome {
	p, err := schema.Strings(params, schema.SIDParams)
	if err != nil {
		return fail(ErrTextLogoutFailed)
	}
	if err := d.sessions.Logout(p[0]); err != nil {
		return fail(ErrTextLogoutFailed)
	}
	observability.SetActiveSessions(d.sessions.Count())
	return succeed(value.Table(value.E("success", value.String("VALID"))))
}

func (d *Dispatcher) authenticate(params value.Node) outcome {
	p, err := schema.Strings(params, schema.SIDParams)
	if err != nil {
		return fail(ErrTextAccessDenied)
	}
	s, found := d.sessions.Find(p[0])
	if !found {
		return fail(ErrTextAccessDenied)
	}
	return succeed(value.Table(
		value.E("sid", value.String(s.SID)),
		value.E("username", value.String(s.User.Username)),
	))
}
