package frame

import (
	"strconv"

	"github.com/gristlabs/gristmux/src/enginerr"
)

// flag bytes, at most one present.
const (
	flagMore  byte = '+'
	flagError byte = '!'
	flagAbort byte = '#'
)

// Encode renders m as a wire frame: <mtype><flag?><reqId>[':' <payload>].
// Exactly one of Data/Error is written as the payload; More/Abort set the
// flag byte. Encode never fails; callers are expected to have validated
// m.ReqID > 0 and m.MType before constructing it, since both originate
// in-process (the RPC Core), not off the wire.
func Encode(m Message) []byte {
	out := make([]byte, 0, 16+len(m.Data)+len(m.Error))
	out = append(out, byte(m.MType))

	switch {
	case m.Error != nil:
		out = append(out, flagError)
	case m.Abort:
		out = append(out, flagAbort)
	case m.More:
		out = append(out, flagMore)
	}

	out = strconv.AppendInt(out, m.ReqID, 10)

	payload := m.Data
	if m.Error != nil {
		payload = m.Error
	}
	if payload != nil {
		out = append(out, ':')
		out = append(out, payload...)
	}
	return out
}

// Decode parses a wire frame produced by Encode. Any malformed input
// returns an *enginerr.DecodeError.
func Decode(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return Message{}, enginerr.NewDecodeError("empty frame")
	}

	mtype := MType(raw[0])
	if !mtype.valid() {
		return Message{}, enginerr.NewDecodeError("unknown mtype tag: " + string(raw[0]))
	}

	rest := raw[1:]
	var more, abort bool
	var isError bool
	if len(rest) > 0 {
		switch rest[0] {
		case flagMore:
			more = true
			rest = rest[1:]
		case flagError:
			isError = true
			rest = rest[1:]
		case flagAbort:
			abort = true
			rest = rest[1:]
		}
	}

	// Split reqId from an optional ':'<payload>.
	digitsEnd := 0
	for digitsEnd < len(rest) && rest[digitsEnd] >= '0' && rest[digitsEnd] <= '9' {
		digitsEnd++
	}
	if digitsEnd == 0 {
		return Message{}, enginerr.NewDecodeError("missing reqId")
	}

	reqID, err := strconv.ParseInt(string(rest[:digitsEnd]), 10, 64)
	if err != nil || reqID <= 0 {
		return Message{}, enginerr.NewDecodeError("non-positive or invalid reqId")
	}

	var payload []byte
	remainder := rest[digitsEnd:]
	if len(remainder) > 0 {
		if remainder[0] != ':' {
			return Message{}, enginerr.NewDecodeError("expected ':' before payload")
		}
		payload = remainder[1:]
	}

	m := Message{MType: mtype, ReqID: reqID, More: more, Abort: abort}
	if isError {
		m.Error = payload
		if m.Error == nil {
			m.Error = []byte{}
		}
	} else {
		m.Data = payload
	}
	return m, nil
}
