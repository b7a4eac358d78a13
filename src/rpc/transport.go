package rpc

import (
	"context"

	"github.com/gristlabs/gristmux/src/wire/frame"
)

// Transport is the contract the RPC Core consumes. The
// engine never binds to a concrete network library directly; a real
// binding (web sockets, TCP, in-process pipes) implements this interface.
type Transport interface {
	// Disconnect returns a Signal that fires at-most-once with the
	// disconnect reason.
	Disconnect() *Signal

	// OnMessage registers the callback invoked for each inbound message,
	// in delivery order. Only one callback may be registered.
	OnMessage(fn func(frame.Message))

	// SendMessage sends msg, returning once it has been handed to the
	// transport (not necessarily flushed).
	SendMessage(ctx context.Context, msg frame.Message) error

	// WaitToDrain returns nil if the local send buffer is already below
	// its high-water mark, else a channel that closes once it drains.
	// The RPC Core only consults this while writing a streaming tail.
	WaitToDrain(ctx context.Context) <-chan struct{}

	// EncodeError and DecodeError (de)serialize an error to/from the
	// opaque bytes carried in a Message's Error field.
	EncodeError(err error) []byte
	DecodeError(payload []byte) error
}
