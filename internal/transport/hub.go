package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/rpcgate/internal/observability"
	"github.com/danmuck/rpcgate/internal/protocol/frame"
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownPeer = errors.New("transport: unknown peer")
	ErrHubClosed   = errors.New("transport: hub closed")
)

// Message is one decoded inbound request.
type Message struct {
	Peer     uint32
	Encoding frame.Encoding
	Body     value.Node
	Received time.Time
}

type peer interface {
	send(enc frame.Encoding, payload []byte) error
	close() error
	kind() string
}

// Hub assigns peer ids and funnels inbound messages into one queue.
type Hub struct {
	inbound chan Message
	done    chan struct{}
	once    sync.Once
	nextID  atomic.Uint32
	limits  frame.Limits

	mu    sync.RWMutex
	peers map[uint32]peer
}

func NewHub(queue int, limits frame.Limits) *Hub {
	if queue <= 0 {
		queue = 64
	}
	if limits.MaxPayloadBytes == 0 {
		limits = frame.DefaultLimits()
	}
	return &Hub{
		inbound: make(chan Message, queue),
		done:    make(chan struct{}),
		limits:  limits,
		peers:   make(map[uint32]peer),
	}
}

// Recv waits up to timeout for the next message. It returns false on
// timeout, on context cancellation and after Close.
func (h *Hub) Recv(ctx context.Context, timeout time.Duration) (Message, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-h.inbound:
		return msg, true
	case <-timer.C:
		return Message{}, false
	case <-ctx.Done():
		return Message{}, false
	case <-h.done:
		return Message{}, false
	}
}

// Send encodes n for enc and writes it to peer id.
func (h *Hub) Send(id uint32, enc frame.Encoding, n value.Node) error {
	h.mu.RLock()
	p, ok := h.peers[id]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownPeer
	}
	payload, err := EncodePayload(enc, n)
	if err != nil {
		return err
	}
	return p.send(enc, payload)
}

// Peers reports the number of connected peers.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every peer and stops Recv.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		peers := h.peers
		h.peers = make(map[uint32]peer)
		h.mu.Unlock()
		for _, p := range peers {
			observability.PeerDisconnected(p.kind())
			_ = p.close()
		}
	})
}

func (h *Hub) register(p peer) uint32 {
	id := h.nextID.Add(1)
	h.mu.Lock()
	h.peers[id] = p
	h.mu.Unlock()
	observability.PeerConnected(p.kind())
	log.Debug().Uint32("peer", id).Str("transport", p.kind()).Msg("transport.Hub.register")
	return id
}

func (h *Hub) unregister(id uint32) {
	h.mu.Lock()
	p, ok := h.peers[id]
	delete(h.peers, id)
	h.mu.Unlock()
	if ok {
		observability.PeerDisconnected(p.kind())
		log.Debug().Uint32("peer", id).Str("transport", p.kind()).Msg("transport.Hub.unregister")
	}
}

// deliver decodes payload and queues it. Malformed payloads are dropped.
func (h *Hub) deliver(ctx context.Context, id uint32, enc frame.Encoding, payload []byte) error {
	body, err := DecodePayload(enc, payload)
	if err != nil {
		log.Debug().Uint32("peer", id).Str("encoding", enc.String()).Err(err).Msg("transport.Hub.deliver malformed")
		return nil
	}
	msg := Message{Peer: id, Encoding: enc, Body: body, Received: time.Now()}
	select {
	case h.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}
