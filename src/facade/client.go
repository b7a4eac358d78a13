package facade

import (
	"context"
	"sync"

	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/rpc"
	"github.com/gristlabs/gristmux/src/wire/frame"
	"github.com/gristlabs/gristmux/src/wire/stream"
)

// Client issues fetchQuery/fetchQueryStreaming/applyActions calls over an
// rpc.Core and demultiplexes the server's "action" Signals to locally
// registered listeners. Grounded on the Driver/StreamingDriver
// split (src/driver/driver.go): plain calls return a value outright,
// streaming calls return a lazily-pulled sequence.
type Client struct {
	core  *rpc.Core
	codec frame.PayloadCodec

	mu             sync.Mutex
	listeners      map[int64]func(model.ActionSet)
	nextListenerID int64
}

// NewClient creates a Client that issues calls through core. codec
// defaults to frame.DefaultPayloadCodec if nil. The caller is responsible
// for having constructed core with rpc.WithSignalHandler(client.HandleSignal).
func NewClient(core *rpc.Core, codec frame.PayloadCodec) *Client {
	if codec == nil {
		codec = frame.DefaultPayloadCodec
	}
	return &Client{core: core, codec: codec, listeners: make(map[int64]func(model.ActionSet))}
}

// OnAction registers callback to receive every "action" Signal the server
// pushes for as long as disconnect has not fired. Returns a function that
// deregisters callback early.
func (c *Client) OnAction(disconnect *rpc.Signal, callback func(model.ActionSet)) func() {
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = callback
	c.mu.Unlock()

	if disconnect != nil {
		go func() {
			<-disconnect.Done()
			c.removeListener(id)
		}()
	}
	return func() { c.removeListener(id) }
}

func (c *Client) removeListener(id int64) {
	c.mu.Lock()
	delete(c.listeners, id)
	c.mu.Unlock()
}

// HandleSignal is the rpc.SignalHandler bound to this Client's Core via
// rpc.WithSignalHandler. It recognizes only SignalAction; any other
// signal name, or an undecodable payload, is dropped silently.
func (c *Client) HandleSignal(ctx context.Context, cancel *rpc.Signal, data rpc.StreamingData) {
	name, rawPayload, err := decodeMethod(c.codec, data.Value)
	if err != nil || name != SignalAction {
		return
	}
	var actionSet model.ActionSet
	if err := c.codec.Unmarshal(rawPayload, &actionSet); err != nil {
		return
	}

	c.mu.Lock()
	callbacks := make([]func(model.ActionSet), 0, len(c.listeners))
	for _, cb := range c.listeners {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()
	for _, cb := range callbacks {
		cb(actionSet)
	}
}

// FetchQuery runs q against the server's store and returns the full
// columnar result.
func (c *Client) FetchQuery(ctx context.Context, q model.Query) (model.QueryResult, error) {
	payload, err := encodeCall(c.codec, MethodFetchQuery, fetchQueryRequest{Query: q})
	if err != nil {
		return model.QueryResult{}, err
	}
	resp, err := c.core.MakeCall(ctx, rpc.StreamingData{Value: payload}, nil)
	if err != nil {
		return model.QueryResult{}, err
	}
	var result model.QueryResult
	if err := c.codec.Unmarshal(resp.Value, &result); err != nil {
		return model.QueryResult{}, enginerr.NewDecodeError("malformed fetchQuery response: " + err.Error())
	}
	return result, nil
}

// FetchQueryStreaming runs q lazily, returning the initial value frame and
// a RowChunk iterator. cancel, if non-nil, aborts the call and the
// server-side read together.
func (c *Client) FetchQueryStreaming(ctx context.Context, q model.Query, options model.StreamingOptions, cancel *rpc.Signal) (model.QueryResultValue, *stream.Iterator[model.RowChunk], error) {
	payload, err := encodeCall(c.codec, MethodFetchQueryStreaming, fetchQueryStreamingRequest{Query: q, Options: options})
	if err != nil {
		return model.QueryResultValue{}, nil, err
	}
	resp, err := c.core.MakeCall(ctx, rpc.StreamingData{Value: payload}, cancel)
	if err != nil {
		return model.QueryResultValue{}, nil, err
	}
	var value model.QueryResultValue
	if err := c.codec.Unmarshal(resp.Value, &value); err != nil {
		return model.QueryResultValue{}, nil, enginerr.NewDecodeError("malformed fetchQueryStreaming response: " + err.Error())
	}
	if resp.Chunks == nil {
		// No rows at all: synthesize an already-finished iterator rather
		// than forcing every caller to nil-check.
		empty := stream.New[model.RowChunk](func() {})
		empty.FinishOk()
		return value, empty, nil
	}
	return value, decodeChunks(c.codec, resp.Chunks), nil
}

// ApplyActions commits actionSet atomically and returns one result per
// action.
func (c *Client) ApplyActions(ctx context.Context, actionSet model.ActionSet) (model.ApplyResultSet, error) {
	payload, err := encodeCall(c.codec, MethodApplyActions, applyActionsRequest{ActionSet: actionSet})
	if err != nil {
		return model.ApplyResultSet{}, err
	}
	resp, err := c.core.MakeCall(ctx, rpc.StreamingData{Value: payload}, nil)
	if err != nil {
		return model.ApplyResultSet{}, err
	}
	var result model.ApplyResultSet
	if err := c.codec.Unmarshal(resp.Value, &result); err != nil {
		return model.ApplyResultSet{}, enginerr.NewDecodeError("malformed applyActions response: " + err.Error())
	}
	return result, nil
}
