// Package rpc implements the RPC Core: Call/Signal/Resp
// dispatch, pending-call and open-stream tracking, and cancellation
// wiring. It is grounded on the session/streaming-connection
// request-response correlation (src/bolt/session, src/driver/
// streaming_connection.go), generalized from Bolt's single-request-in-
// flight model to full multiplexed Call/Signal/Resp traffic.
package rpc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gristlabs/gristmux/src/enginelog"
	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/wire/frame"
	"github.com/gristlabs/gristmux/src/wire/stream"
)

// StreamingData is a (value, chunks?) pair: chunks, if non-nil, is a lazy
// finite sequence of opaque chunk payloads.
type StreamingData struct {
	Value  []byte
	Chunks *stream.Iterator[[]byte]
}

// CallHandler handles an inbound Call. cancel fires if the peer aborts the
// call or the connection disconnects.
type CallHandler func(ctx context.Context, cancel *Signal, data StreamingData) (StreamingData, error)

// SignalHandler handles an inbound Signal. There is no response to send.
type SignalHandler func(ctx context.Context, cancel *Signal, data StreamingData)

type pendingCall struct {
	resultCh chan callResult
}

type callResult struct {
	data StreamingData
	err  error
}

type streamKey struct {
	mtype frame.MType
	reqID int64
}

// Core is the RPC Core: one instance per connection.
type Core struct {
	transport Transport
	logger    enginelog.Logger
	logFrames bool

	nextReqID int64

	mu             sync.Mutex
	pendingCalls   map[int64]*pendingCall
	pendingStreams map[streamKey]*stream.Iterator[[]byte]
	callHandlers   map[int64]*Signal

	disconnect *Signal

	callHandler   CallHandler
	signalHandler SignalHandler
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithLogger attaches a logger used for the dispatch logging hook.
func WithLogger(logger enginelog.Logger, logFrames bool) Option {
	return func(c *Core) {
		c.logger = logger
		c.logFrames = logFrames
	}
}

// WithCallHandler registers the handler invoked for inbound Calls.
func WithCallHandler(h CallHandler) Option {
	return func(c *Core) { c.callHandler = h }
}

// WithSignalHandler registers the handler invoked for inbound Signals.
func WithSignalHandler(h SignalHandler) Option {
	return func(c *Core) { c.signalHandler = h }
}

// NewCore creates a Core bound to transport, wires up disconnect
// propagation, and registers itself as the transport's message callback.
func NewCore(transport Transport, opts ...Option) *Core {
	c := &Core{
		transport:      transport,
		logger:         &enginelog.NoOpLogger{},
		pendingCalls:   make(map[int64]*pendingCall),
		pendingStreams: make(map[streamKey]*stream.Iterator[[]byte]),
		callHandlers:   make(map[int64]*Signal),
		disconnect:     transport.Disconnect(),
	}
	for _, opt := range opts {
		opt(c)
	}
	transport.OnMessage(func(msg frame.Message) { c.Dispatch(msg) })
	go c.watchDisconnect()
	return c
}

func (c *Core) nextID() int64 {
	return atomic.AddInt64(&c.nextReqID, 1)
}

func (c *Core) watchDisconnect() {
	<-c.disconnect.Done()
	reason := c.disconnect.Reason()
	disconnectErr := enginerr.NewDisconnectError(reasonString(reason))

	c.mu.Lock()
	calls := c.pendingCalls
	c.pendingCalls = make(map[int64]*pendingCall)
	streams := c.pendingStreams
	c.pendingStreams = make(map[streamKey]*stream.Iterator[[]byte])
	c.mu.Unlock()

	for _, pc := range calls {
		pc.resultCh <- callResult{err: disconnectErr}
	}
	for _, it := range streams {
		it.SupplyError(disconnectErr)
	}
}

func reasonString(reason error) string {
	if reason == nil {
		return "transport closed"
	}
	return reason.Error()
}

// MakeCall assigns a reqId, sends the Call frame (and any trailing chunk
// frames), and resolves when the matching Resp arrives. If cancel fires
// before resolution, an abort frame is sent and resolution still awaits
// the peer's (error) Resp.
func (c *Core) MakeCall(ctx context.Context, data StreamingData, cancel *Signal) (StreamingData, error) {
	reqID := c.nextID()
	pc := &pendingCall{resultCh: make(chan callResult, 1)}

	c.mu.Lock()
	c.pendingCalls[reqID] = pc
	c.mu.Unlock()

	if err := c.sendStreamingData(ctx, frame.Call, reqID, data); err != nil {
		c.mu.Lock()
		delete(c.pendingCalls, reqID)
		c.mu.Unlock()
		return StreamingData{}, err
	}

	var cancelDone <-chan struct{}
	if cancel != nil {
		cancelDone = cancel.Done()
	}
	aborted := false
	for {
		select {
		case res := <-pc.resultCh:
			return res.data, res.err
		case <-c.disconnect.Done():
			c.mu.Lock()
			delete(c.pendingCalls, reqID)
			c.mu.Unlock()
			return StreamingData{}, enginerr.NewDisconnectError(reasonString(c.disconnect.Reason()))
		case <-cancelDone:
			if !aborted {
				aborted = true
				_ = c.transport.SendMessage(ctx, frame.Message{MType: frame.Call, ReqID: reqID, Abort: true})
			}
			cancelDone = nil
		}
	}
}

// SendSignal sends data as a fire-and-forget Signal; no response is
// expected.
func (c *Core) SendSignal(ctx context.Context, data StreamingData) error {
	reqID := c.nextID()
	return c.sendStreamingData(ctx, frame.Signal, reqID, data)
}

// Dispatch routes an inbound message to its effect. It returns whether
// dispatch succeeded; any failure is reported via the logging hook.
func (c *Core) Dispatch(msg frame.Message) bool {
	if c.logFrames {
		c.logger.Debug("dispatch frame", "mtype", string(rune(msg.MType)), "reqId", msg.ReqID, "more", msg.More, "abort", msg.Abort)
	}

	key := streamKey{msg.MType, msg.ReqID}
	c.mu.Lock()
	it, isStream := c.pendingStreams[key]
	c.mu.Unlock()
	if isStream {
		switch {
		case msg.Error != nil:
			it.SupplyError(c.transport.DecodeError(msg.Error))
		case !msg.More:
			it.FinishOk()
		default:
			it.SupplyChunk(msg.Data)
		}
		return true
	}

	switch msg.MType {
	case frame.Call:
		return c.dispatchCall(msg)
	case frame.Signal:
		return c.dispatchSignal(msg)
	case frame.Resp:
		return c.dispatchResp(msg)
	default:
		c.logger.Error("dispatch: unknown mtype", "mtype", msg.MType)
		return false
	}
}

func (c *Core) dispatchCall(msg frame.Message) bool {
	if msg.Abort {
		c.mu.Lock()
		token := c.callHandlers[msg.ReqID]
		c.mu.Unlock()
		if token == nil {
			c.logger.Warn("abort for unknown call", "reqId", msg.ReqID)
			return false
		}
		token.Fire(enginerr.NewAbortedError("peer sent abort"))
		return true
	}

	if c.callHandler == nil {
		c.logger.Error("no call handler registered", "reqId", msg.ReqID)
		return false
	}

	var chunks *stream.Iterator[[]byte]
	if msg.More {
		key := streamKey{frame.Call, msg.ReqID}
		chunks = stream.New[[]byte](func() {
			c.mu.Lock()
			delete(c.pendingStreams, key)
			c.mu.Unlock()
		})
		c.mu.Lock()
		c.pendingStreams[key] = chunks
		c.mu.Unlock()
	}

	own := NewSignal()
	cancelToken := Combine(own, c.disconnect)
	c.mu.Lock()
	c.callHandlers[msg.ReqID] = own
	c.mu.Unlock()

	reqID := msg.ReqID
	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.callHandlers, reqID)
			c.mu.Unlock()
		}()

		result, err := c.callHandler(context.Background(), cancelToken, StreamingData{Value: msg.Data, Chunks: chunks})
		if err != nil {
			resp := frame.Message{MType: frame.Resp, ReqID: reqID, Error: c.transport.EncodeError(err)}
			if sendErr := c.transport.SendMessage(context.Background(), resp); sendErr != nil {
				c.logger.Error("failed to send error response", "reqId", reqID, "error", sendErr)
			}
			return
		}
		if sendErr := c.sendStreamingData(context.Background(), frame.Resp, reqID, result); sendErr != nil {
			c.logger.Error("failed to send response", "reqId", reqID, "error", sendErr)
		}
	}()
	return true
}

func (c *Core) dispatchSignal(msg frame.Message) bool {
	if c.signalHandler == nil {
		c.logger.Error("no signal handler registered", "reqId", msg.ReqID)
		return false
	}

	var chunks *stream.Iterator[[]byte]
	if msg.More {
		key := streamKey{frame.Signal, msg.ReqID}
		chunks = stream.New[[]byte](func() {
			c.mu.Lock()
			delete(c.pendingStreams, key)
			c.mu.Unlock()
		})
		c.mu.Lock()
		c.pendingStreams[key] = chunks
		c.mu.Unlock()
	}

	go c.signalHandler(context.Background(), c.disconnect, StreamingData{Value: msg.Data, Chunks: chunks})
	return true
}

func (c *Core) dispatchResp(msg frame.Message) bool {
	c.mu.Lock()
	pc, ok := c.pendingCalls[msg.ReqID]
	if ok {
		delete(c.pendingCalls, msg.ReqID)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Error("response for unknown request", "reqId", msg.ReqID)
		return false
	}

	if msg.Error != nil {
		pc.resultCh <- callResult{err: c.transport.DecodeError(msg.Error)}
		return true
	}

	var chunks *stream.Iterator[[]byte]
	if msg.More {
		key := streamKey{frame.Resp, msg.ReqID}
		chunks = stream.New[[]byte](func() {
			c.mu.Lock()
			delete(c.pendingStreams, key)
			c.mu.Unlock()
		})
		c.mu.Lock()
		c.pendingStreams[key] = chunks
		c.mu.Unlock()
	}

	pc.resultCh <- callResult{data: StreamingData{Value: msg.Data, Chunks: chunks}}
	return true
}

// sendStreamingData sends data.Value as the initial frame, then, if
// data.Chunks is set, pulls and forwards each chunk respecting the
// transport's drain signal, terminating with an empty frame (or an error
// frame if the chunk source itself failed). Send errors from the
// transport propagate out distinctly from chunk-iteration errors, which
// are encoded onto the wire instead.
func (c *Core) sendStreamingData(ctx context.Context, mtype frame.MType, reqID int64, data StreamingData) error {
	if data.Chunks == nil {
		if err := c.transport.SendMessage(ctx, frame.Message{MType: mtype, ReqID: reqID, Data: data.Value}); err != nil {
			return enginerr.NewSendError(err)
		}
		return nil
	}

	if err := c.transport.SendMessage(ctx, frame.Message{MType: mtype, ReqID: reqID, Data: data.Value, More: true}); err != nil {
		return enginerr.NewSendError(err)
	}

	for {
		select {
		case <-c.disconnect.Done():
			return enginerr.NewDisconnectError(reasonString(c.disconnect.Reason()))
		default:
		}

		if drainCh := c.transport.WaitToDrain(ctx); drainCh != nil {
			select {
			case <-drainCh:
			case <-ctx.Done():
				return ctx.Err()
			case <-c.disconnect.Done():
				return enginerr.NewDisconnectError(reasonString(c.disconnect.Reason()))
			}
		}

		res := data.Chunks.Next()
		if res.Done {
			if res.Err != nil {
				errPayload := c.transport.EncodeError(res.Err)
				if err := c.transport.SendMessage(ctx, frame.Message{MType: mtype, ReqID: reqID, Error: errPayload}); err != nil {
					return enginerr.NewSendError(err)
				}
				return nil
			}
			if err := c.transport.SendMessage(ctx, frame.Message{MType: mtype, ReqID: reqID}); err != nil {
				return enginerr.NewSendError(err)
			}
			return nil
		}

		if err := c.transport.SendMessage(ctx, frame.Message{MType: mtype, ReqID: reqID, Data: res.Chunk, More: true}); err != nil {
			return enginerr.NewSendError(err)
		}
	}
}
