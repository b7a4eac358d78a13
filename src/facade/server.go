package facade

import (
	"context"
	"encoding/json"

	"github.com/gristlabs/gristmux/src/enginelog"
	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/pool"
	"github.com/gristlabs/gristmux/src/rpc"
	"github.com/gristlabs/gristmux/src/wire/frame"
)

// Server answers fetchQuery/fetchQueryStreaming/applyActions calls against
// a connection Pool, and pushes every committed ActionSet back to the peer
// as an "action" Signal. One Server is constructed per connection.
type Server struct {
	pool   *pool.Pool
	codec  frame.PayloadCodec
	logger enginelog.Logger
}

// NewServer creates a Server over p, using codec to (de)serialize method
// payloads. codec defaults to frame.DefaultPayloadCodec if nil.
func NewServer(p *pool.Pool, codec frame.PayloadCodec, logger enginelog.Logger) *Server {
	if codec == nil {
		codec = frame.DefaultPayloadCodec
	}
	if logger == nil {
		logger = &enginelog.NoOpLogger{}
	}
	return &Server{pool: p, codec: codec, logger: logger}
}

// Attach registers a per-connection action listener that forwards every
// committed ActionSet to the peer as an "action" Signal, disposing itself
// when disconnect fires. It does not install s as core's call handler;
// that is done by passing rpc.WithCallHandler to rpc.NewCore. core must
// not yet have dispatched any messages (Attach is meant to run right
// after rpc.NewCore, before the transport delivers its first frame).
func (s *Server) Attach(core *rpc.Core, disconnect *rpc.Signal) error {
	return s.pool.WithHandle(context.Background(), func(h *pool.Handle) error {
		h.AddActionListener(disconnect, func(actionSet model.ActionSet) {
			payload, err := s.codec.Marshal(actionSet)
			if err != nil {
				s.logger.Error("failed to encode action broadcast", "error", err)
				return
			}
			if err := core.SendSignal(context.Background(), rpc.StreamingData{Value: encodeSignal(s.codec, payload)}); err != nil {
				s.logger.Warn("failed to send action signal", "error", err)
			}
		})
		return nil
	})
}

// encodeSignal wraps an already-encoded ActionSet payload as a
// [signalName, payload] envelope, mirroring the [method, args] call
// envelope so both sides of the wire share one framing convention.
func encodeSignal(codec frame.PayloadCodec, actionSetPayload []byte) []byte {
	env, err := encodeCall(codec, SignalAction, json.RawMessage(actionSetPayload))
	if err != nil {
		// actionSetPayload is already valid JSON; encoding the envelope
		// around it cannot fail.
		panic(err)
	}
	return env
}

// HandleCall is the rpc.CallHandler bound to this Server via
// rpc.WithCallHandler. It never blocks waiting on the peer; it blocks only
// on the work the method itself requires (an SQL round trip or a pool
// wait).
func (s *Server) HandleCall(ctx context.Context, cancel *rpc.Signal, data rpc.StreamingData) (rpc.StreamingData, error) {
	method, rawArgs, err := decodeMethod(s.codec, data.Value)
	if err != nil {
		return rpc.StreamingData{}, err
	}

	switch method {
	case MethodFetchQuery:
		return s.handleFetchQuery(ctx, rawArgs)
	case MethodFetchQueryStreaming:
		return s.handleFetchQueryStreaming(ctx, cancel, rawArgs)
	case MethodApplyActions:
		return s.handleApplyActions(ctx, rawArgs)
	default:
		return rpc.StreamingData{}, enginerr.NewUnknownMethodError(method)
	}
}

func (s *Server) handleFetchQuery(ctx context.Context, rawArgs []byte) (rpc.StreamingData, error) {
	var req fetchQueryRequest
	if err := s.codec.Unmarshal(rawArgs, &req); err != nil {
		return rpc.StreamingData{}, enginerr.NewDecodeError("malformed fetchQuery args: " + err.Error())
	}

	var result model.QueryResult
	err := s.pool.WithHandle(ctx, func(h *pool.Handle) error {
		var err error
		result, err = h.FetchQuery(ctx, req.Query)
		return err
	})
	if err != nil {
		return rpc.StreamingData{}, err
	}

	payload, err := s.codec.Marshal(result)
	if err != nil {
		return rpc.StreamingData{}, err
	}
	return rpc.StreamingData{Value: payload}, nil
}

func (s *Server) handleApplyActions(ctx context.Context, rawArgs []byte) (rpc.StreamingData, error) {
	var req applyActionsRequest
	if err := s.codec.Unmarshal(rawArgs, &req); err != nil {
		return rpc.StreamingData{}, enginerr.NewDecodeError("malformed applyActions args: " + err.Error())
	}

	var result model.ApplyResultSet
	err := s.pool.WithHandle(ctx, func(h *pool.Handle) error {
		var err error
		result, err = h.ApplyActions(ctx, req.ActionSet)
		return err
	})
	if err != nil {
		return rpc.StreamingData{}, err
	}

	payload, err := s.codec.Marshal(result)
	if err != nil {
		return rpc.StreamingData{}, err
	}
	return rpc.StreamingData{Value: payload}, nil
}

// handleFetchQueryStreaming holds its pool handle checked out for the
// entire life of the returned stream: it is released only once the caller
// has fully consumed or abandoned the chunk iterator (see encodeChunks'
// onDone hook), not when this method returns.
func (s *Server) handleFetchQueryStreaming(ctx context.Context, cancel *rpc.Signal, rawArgs []byte) (rpc.StreamingData, error) {
	var req fetchQueryStreamingRequest
	if err := s.codec.Unmarshal(rawArgs, &req); err != nil {
		return rpc.StreamingData{}, enginerr.NewDecodeError("malformed fetchQueryStreaming args: " + err.Error())
	}

	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return rpc.StreamingData{}, err
	}

	value, rows, err := h.FetchQueryStreaming(ctx, req.Query, req.Options, cancel)
	if err != nil {
		h.Release()
		return rpc.StreamingData{}, err
	}

	payload, err := s.codec.Marshal(value)
	if err != nil {
		rows.Close()
		h.Release()
		return rpc.StreamingData{}, err
	}

	chunks := encodeChunks(s.codec, rows, h.Release)
	return rpc.StreamingData{Value: payload, Chunks: chunks}, nil
}
