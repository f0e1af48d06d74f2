package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/danmuck/rpcgate/internal/protocol/frame"
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrMismatchedReply = errors.New("transport: reply id does not match request")

// Client is a blocking websocket RPC client. One call is in flight at a time.
type Client struct {
	conn     *websocket.Conn
	encoding frame.Encoding
	nextID   atomic.Int32
}

// Dial connects to a ws:// URL, retrying with backoff.
func Dial(ctx context.Context, url string, enc frame.Encoding, backoff BackoffConfig) (*Client, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempts := backoff.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			return &Client{conn: conn, encoding: enc}, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := NextBackoffDelay(backoff, attempt, rng)
		log.Debug().Str("url", url).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("transport.Dial retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("transport: dial %s: %w", url, lastErr)
}

// Call sends {id, method, params} and waits for the matching reply envelope.
func (c *Client) Call(ctx context.Context, method string, params ...value.Node) (value.Node, error) {
	id := c.nextID.Add(1)
	req := value.Table(
		value.E("id", value.Int32(id)),
		value.E("method", value.String(method)),
		value.E("params", value.Array(params...)),
	)
	if err := c.Write(req); err != nil {
		return value.Node{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	reply, err := c.Read()
	if err != nil {
		return value.Node{}, err
	}
	got, ok := reply.Lookup("id")
	if n, err := got.Int(); !ok || err != nil || n != int64(id) {
		return reply, ErrMismatchedReply
	}
	return reply, nil
}

// Write sends one raw request tree.
func (c *Client) Write(n value.Node) error {
	payload, err := EncodePayload(c.encoding, n)
	if err != nil {
		return err
	}
	kind := websocket.TextMessage
	if c.encoding == frame.EncodingTLV {
		kind = websocket.BinaryMessage
	}
	return c.conn.WriteMessage(kind, payload)
}

// Read returns the next reply tree.
func (c *Client) Read() (value.Node, error) {
	kind, payload, err := c.conn.ReadMessage()
	if err != nil {
		return value.Node{}, err
	}
	enc := frame.EncodingJSON
	if kind == websocket.BinaryMessage {
		enc = frame.EncodingTLV
	}
	return DecodePayload(enc, payload)
}

func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Client) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
