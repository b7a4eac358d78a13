// Package facade maps the fixed RPC method surface (fetchQuery,
// fetchQueryStreaming, applyActions, plus server-pushed action signals)
// onto the RPC Core's Call/Signal primitives. Grounded on the
// cmd/cyq command dispatch (cmd/cyq/run.go, cmd/cyq/main.go) generalized
// from a CLI subcommand switch to a wire method allow-list, and on
// src/driver/driver.go's Driver/StreamingDriver split between plain and
// streaming calls.
package facade

import (
	"encoding/json"

	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/wire/frame"
)

// Method names the facade recognizes. Any other name fails with
// enginerr.UnknownMethodError.
const (
	MethodFetchQuery          = "fetchQuery"
	MethodFetchQueryStreaming = "fetchQueryStreaming"
	MethodApplyActions        = "applyActions"
)

// SignalAction is the Signal name used to push a committed ActionSet to
// every listening connection.
const SignalAction = "action"

// fetchQueryRequest is the argument list for MethodFetchQuery.
type fetchQueryRequest struct {
	Query model.Query
}

type fetchQueryStreamingRequest struct {
	Query   model.Query
	Options model.StreamingOptions
}

type applyActionsRequest struct {
	ActionSet model.ActionSet
}

// envelope encodes [methodName, ...args] as a JSON array, the one wire
// shape every Call payload carries.
func encodeCall(codec frame.PayloadCodec, method string, args interface{}) ([]byte, error) {
	raw, err := codec.Marshal(args)
	if err != nil {
		return nil, err
	}
	return codec.Marshal([]json.RawMessage{mustQuoteString(method), raw})
}

// mustQuoteString renders s as a JSON string literal; method names are
// always valid UTF-8 identifiers so this never fails.
func mustQuoteString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// decodeMethod splits an inbound Call payload into its method name and the
// still-encoded argument value.
func decodeMethod(codec frame.PayloadCodec, data []byte) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := codec.Unmarshal(data, &parts); err != nil {
		return "", nil, enginerr.NewDecodeError("malformed method call envelope: " + err.Error())
	}
	if len(parts) != 2 {
		return "", nil, enginerr.NewDecodeError("method call envelope must be [method, args]")
	}
	var method string
	if err := codec.Unmarshal(parts[0], &method); err != nil {
		return "", nil, enginerr.NewDecodeError("malformed method name: " + err.Error())
	}
	return method, parts[1], nil
}
