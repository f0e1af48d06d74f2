// Package transport moves value trees between remote peers and the
// dispatch loop.
//
// Peers connect over a websocket served by the HTTP listener or over a
// framed unix/tcp stream. Every inbound message is decoded and queued on a
// Hub; the single dispatch goroutine drains the queue with Recv and answers
// with Send. Network goroutines never touch dispatcher state.
package transport
