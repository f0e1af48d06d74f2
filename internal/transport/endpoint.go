package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

var ErrInvalidEndpoint = errors.New("transport: invalid endpoint")

type Scheme string

const (
	SchemeWS   Scheme = "ws"
	SchemeTCP  Scheme = "tcp"
	SchemeUnix Scheme = "unix"
)

// Endpoint is one listen address. ws endpoints serve HTTP plus the
// websocket route; tcp and unix endpoints speak framed streams.
type Endpoint struct {
	Scheme  Scheme
	Address string
}

// ParseEndpoint accepts ws://host:port, tcp://host:port, unix:///path and a
// bare host:port, which is treated as ws.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	if !strings.Contains(raw, "://") {
		return Endpoint{Scheme: SchemeWS, Address: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	switch Scheme(u.Scheme) {
	case SchemeWS, SchemeTCP:
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, raw)
		}
		return Endpoint{Scheme: Scheme(u.Scheme), Address: u.Host}, nil
	case SchemeUnix:
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		if p == "" {
			return Endpoint{}, fmt.Errorf("%w: missing path in %q", ErrInvalidEndpoint, raw)
		}
		return Endpoint{Scheme: SchemeUnix, Address: p}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
}

func (e Endpoint) String() string {
	if e.Scheme == SchemeUnix {
		return "unix://" + e.Address
	}
	return string(e.Scheme) + "://" + e.Address
}

// Listen opens the endpoint. A stale unix socket file is removed first.
func Listen(e Endpoint) (net.Listener, error) {
	switch e.Scheme {
	case SchemeWS, SchemeTCP:
		return net.Listen("tcp", e.Address)
	case SchemeUnix:
		if fi, err := os.Stat(e.Address); err == nil && fi.Mode()&os.ModeSocket != 0 {
			_ = os.Remove(e.Address)
		}
		return net.Listen("unix", e.Address)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEndpoint, e.Scheme)
	}
}
