// Package pipetransport is an in-memory reference Transport, used in
// tests; the diagnostic CLI does not use it. It is grounded on the
// pooledConn's connection-state tracking (src/driver/
// pooled_conn.go), generalized from a net.Conn wrapper to a bounded
// in-process frame queue that exercises the same high-water-mark/drain
// contract a real socket transport would present to the RPC Core.
package pipetransport

import (
	"context"
	"sync"

	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/rpc"
	"github.com/gristlabs/gristmux/src/wire/frame"
)

const inboxCapacity = 4096

// New creates a connected pair of Endpoints and starts their delivery
// pumps. highWaterMark is the number of un-drained outbound frames at
// which WaitToDrain starts blocking; 0 disables backpressure entirely.
func New(highWaterMark int) (a, b *Endpoint) {
	a = &Endpoint{highWaterMark: highWaterMark, disconnect: rpc.NewSignal(), inbox: make(chan frame.Message, inboxCapacity)}
	b = &Endpoint{highWaterMark: highWaterMark, disconnect: rpc.NewSignal(), inbox: make(chan frame.Message, inboxCapacity)}
	a.peer = b
	b.peer = a
	go a.pump()
	go b.pump()
	return a, b
}

// Endpoint is one side of an in-memory Pipe. Messages sent on one side
// are delivered to the other in order: each Endpoint drains its inbox
// with a single dedicated goroutine, so concurrent SendMessage calls
// from the peer never race each other onto the wire.
type Endpoint struct {
	mu            sync.Mutex
	peer          *Endpoint
	onMessage     func(frame.Message)
	inbox         chan frame.Message
	highWaterMark int
	queueLen      int
	drainWaiters  []chan struct{}
	disconnect    *rpc.Signal
	closed        bool
}

func (e *Endpoint) pump() {
	for msg := range e.inbox {
		e.mu.Lock()
		handler := e.onMessage
		sender := e.peer
		e.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
		if sender != nil {
			sender.drainOne()
		}
	}
}

// Disconnect implements rpc.Transport.
func (e *Endpoint) Disconnect() *rpc.Signal { return e.disconnect }

// OnMessage implements rpc.Transport.
func (e *Endpoint) OnMessage(fn func(frame.Message)) {
	e.mu.Lock()
	e.onMessage = fn
	e.mu.Unlock()
}

// SendMessage implements rpc.Transport, enqueuing msg onto the peer's
// inbox and counting it against this endpoint's own outbound backlog
// for WaitToDrain.
func (e *Endpoint) SendMessage(ctx context.Context, msg frame.Message) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return enginerr.NewDisconnectError("endpoint closed")
	}
	peer := e.peer
	e.queueLen++
	e.mu.Unlock()

	peer.mu.Lock()
	closed := peer.closed
	peer.mu.Unlock()
	if closed {
		e.drainOne()
		return enginerr.NewDisconnectError("peer closed")
	}

	select {
	case peer.inbox <- msg:
		return nil
	case <-ctx.Done():
		e.drainOne()
		return ctx.Err()
	}
}

// drainOne simulates the peer having consumed one queued frame, freeing
// one slot of backlog and waking any WaitToDrain callers below the mark.
func (e *Endpoint) drainOne() {
	e.mu.Lock()
	if e.queueLen > 0 {
		e.queueLen--
	}
	belowMark := e.highWaterMark <= 0 || e.queueLen < e.highWaterMark
	var waiters []chan struct{}
	if belowMark && len(e.drainWaiters) > 0 {
		waiters = e.drainWaiters
		e.drainWaiters = nil
	}
	e.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// WaitToDrain implements rpc.Transport.
func (e *Endpoint) WaitToDrain(ctx context.Context) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.highWaterMark <= 0 || e.queueLen < e.highWaterMark {
		return nil
	}
	ch := make(chan struct{})
	e.drainWaiters = append(e.drainWaiters, ch)
	return ch
}

// EncodeError implements rpc.Transport using the error's message text as
// the opaque wire payload.
func (e *Endpoint) EncodeError(err error) []byte {
	if err == nil {
		return []byte{}
	}
	return []byte(err.Error())
}

// DecodeError implements rpc.Transport, wrapping the opaque payload back
// into a HandlerError.
func (e *Endpoint) DecodeError(payload []byte) error {
	return enginerr.NewHandlerError(string(payload))
}

// Close disconnects this endpoint with reason, firing its Disconnect
// Signal and stopping its delivery pump. Idempotent.
func (e *Endpoint) Close(reason error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	waiters := e.drainWaiters
	e.drainWaiters = nil
	close(e.inbox)
	e.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
	e.disconnect.Fire(reason)
}
