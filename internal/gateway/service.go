// Package gateway hosts the request dispatcher and the single-threaded
// event loop that feeds it from the transports.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/rpcgate/internal/auth"
	"github.com/danmuck/rpcgate/internal/config"
	"github.com/danmuck/rpcgate/internal/plugins"
	"github.com/danmuck/rpcgate/internal/plugins/luart"
	"github.com/danmuck/rpcgate/internal/protocol/frame"
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/danmuck/rpcgate/internal/session"
	"github.com/danmuck/rpcgate/internal/tools"
	"github.com/danmuck/rpcgate/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidRecvTimeout = errors.New("gateway: invalid recv timeout")
	ErrNoListeners        = errors.New("gateway: no listen endpoints")
)

// ServiceConfig configures the gateway daemon.
type ServiceConfig struct {
	Listen          []string
	WWWRoot         string
	PluginDir       string
	PasswordFile    string
	RecvTimeout     time.Duration
	CorsOrigins     []string
	AllowFileWrite  bool
	AllowExec       bool
	ExecTimeout     time.Duration
	MaxMessageBytes uint32
	MetricsToken    string
	QueueSize       int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Listen:          []string{"ws://0.0.0.0:8080"},
		WWWRoot:         "",
		PluginDir:       "plugins",
		PasswordFile:    "",
		RecvTimeout:     time.Second,
		ExecTimeout:     10 * time.Second,
		MaxMessageBytes: frame.DefaultLimits().MaxPayloadBytes,
		QueueSize:       64,
	}
}

// Transport is what the event loop needs from the network side.
type Transport interface {
	Recv(ctx context.Context, timeout time.Duration) (transport.Message, bool)
	Send(peer uint32, enc frame.Encoding, n value.Node) error
}

// Service owns every gateway component and runs the event loop.
type Service struct {
	cfg        ServiceConfig
	hub        *transport.Hub
	sessions   *session.Manager
	registry   *plugins.Registry
	runtime    *luart.Runtime
	dispatcher *Dispatcher
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	return &Service{cfg: cfg}
}

// Run blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.bootstrap(); err != nil {
		return err
	}
	defer s.runtime.Close()
	return s.serve(ctx)
}

func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// bootstrap loads users and plugins and builds the dispatcher.
func (s *Service) bootstrap() error {
	if s.cfg.RecvTimeout <= 0 {
		return ErrInvalidRecvTimeout
	}
	var users []*session.User
	if s.cfg.PasswordFile != "" {
		loaded, err := config.LoadUsers(s.cfg.PasswordFile)
		if err != nil {
			return err
		}
		users = loaded
	} else {
		log.Warn().Msg("gateway.Service.bootstrap no password file; login disabled")
	}
	s.sessions = session.NewManager(users)
	s.registry = plugins.NewRegistry(s.sessions)
	opts := luart.Options{AllowFileWrite: s.cfg.AllowFileWrite}
	if s.cfg.AllowExec {
		opts.Exec = tools.ExecRunner{Timeout: s.cfg.ExecTimeout}
	}
	s.runtime = luart.NewRuntime(opts)
	if s.cfg.PluginDir != "" {
		if _, err := s.registry.Load(s.cfg.PluginDir, s.runtime); err != nil {
			return err
		}
	}
	s.dispatcher = NewDispatcher(s.sessions, s.registry)
	s.hub = transport.NewHub(s.cfg.QueueSize, frame.Limits{MaxPayloadBytes: s.cfg.MaxMessageBytes})

	log.Info().
		Int("users", len(users)).
		Int("objects", len(s.registry.Names())).
		Strs("listen", s.cfg.Listen).
		Msg("gateway.Service.bootstrap ready")
	return nil
}

// serve opens every endpoint and runs the event loop until ctx is done or
// a listener fails.
func (s *Service) serve(ctx context.Context) error {
	if len(s.cfg.Listen) == 0 {
		return ErrNoListeners
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.hub.Close()

	var httpSrv *transport.HTTPServer
	listenErr := make(chan error, len(s.cfg.Listen))
	for _, raw := range s.cfg.Listen {
		ep, err := transport.ParseEndpoint(raw)
		if err != nil {
			return err
		}
		ln, err := transport.Listen(ep)
		if err != nil {
			return fmt.Errorf("gateway: listen %s: %w", ep, err)
		}
		switch ep.Scheme {
		case transport.SchemeWS:
			if httpSrv == nil {
				httpSrv = transport.NewHTTPServer(s.hub, s.httpConfig())
			}
			go func(ln net.Listener) { listenErr <- httpSrv.Serve(ctx, ln) }(ln)
		default:
			go func(ln net.Listener) { listenErr <- s.hub.ServeStream(ctx, ln) }(ln)
		}
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- Loop(ctx, s.hub, s.dispatcher, s.cfg.RecvTimeout) }()

	select {
	case err := <-loopErr:
		return err
	case err := <-listenErr:
		cancel()
		<-loopErr
		if err != nil {
			return fmt.Errorf("gateway: listener: %w", err)
		}
		return nil
	}
}

func (s *Service) httpConfig() transport.HTTPConfig {
	cfg := transport.HTTPConfig{
		WWWRoot:     s.cfg.WWWRoot,
		CorsOrigins: s.cfg.CorsOrigins,
	}
	if s.cfg.MetricsToken != "" {
		cfg.MetricsAuth = auth.StaticToken{Token: s.cfg.MetricsToken}
	}
	return cfg
}

// Loop is the single dispatch goroutine: receive, handle, reply. ctx is
// checked once per iteration; a request already received always completes.
func Loop(ctx context.Context, t Transport, d *Dispatcher, timeout time.Duration) error {
	for ctx.Err() == nil {
		waitStart := time.Now()
		msg, ok := t.Recv(ctx, timeout)
		if !ok {
			continue
		}
		wait := time.Since(waitStart)
		if e := log.Trace(); e.Enabled() {
			e.Uint32("peer", msg.Peer).RawJSON("request", value.DumpJSON(msg.Body)).Msg("gateway.Loop recv")
		}

		handleStart := time.Now()
		reply, ok := d.Handle(msg.Peer, msg.Body)
		if !ok {
			continue
		}
		if e := log.Trace(); e.Enabled() {
			e.Uint32("peer", msg.Peer).RawJSON("reply", value.DumpJSON(reply)).Msg("gateway.Loop send")
		}
		if err := t.Send(msg.Peer, msg.Encoding, reply); err != nil {
			log.Debug().Uint32("peer", msg.Peer).Err(err).Msg("gateway.Loop send failed")
		}
		if zerolog.GlobalLevel() <= zerolog.DebugLevel {
			log.Debug().
				Uint32("peer", msg.Peer).
				Dur("wait", wait).
				Dur("handle", time.Since(handleStart)).
				Msg("gateway.Loop timing")
		}
	}
	return nil
}
