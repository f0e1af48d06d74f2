package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/danmuck/rpcgate/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

type streamPeer struct {
	conn   net.Conn
	limits frame.Limits
	mu     sync.Mutex
}

func (p *streamPeer) send(enc frame.Encoding, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return frame.WriteFrame(p.conn, frame.Frame{
		Header:  frame.Header{Encoding: enc, Flags: frame.FlagIsResponse},
		Payload: payload,
	}, p.limits)
}

func (p *streamPeer) close() error { return p.conn.Close() }

func (p *streamPeer) kind() string { return "stream" }

// ServeStream accepts framed stream peers on ln until ctx is done.
func (h *Hub) ServeStream(ctx context.Context, ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("transport.Hub.ServeStream listening")
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go h.handleStream(ctx, conn)
	}
}

// handleStream reads one frame per request until the peer disconnects.
func (h *Hub) handleStream(ctx context.Context, conn net.Conn) {
	p := &streamPeer{conn: conn, limits: h.limits}
	id := h.register(p)
	defer func() {
		h.unregister(id)
		_ = conn.Close()
	}()

	for {
		fr, err := frame.ReadFrame(conn, h.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Uint32("peer", id).Err(err).Msg("transport.Hub.handleStream read")
			}
			return
		}
		if fr.Header.Flags&frame.FlagIsResponse != 0 {
			continue
		}
		if err := h.deliver(ctx, id, fr.Header.Encoding, fr.Payload); err != nil {
			return
		}
	}
}
