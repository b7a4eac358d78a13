// Package frame implements the Codec: a stateless
// pair of functions that encode/decode the ASCII frame header plus an
// opaque JSON payload.
package frame

// MType tags which of Call, Signal, or Resp a Message carries.
type MType byte

const (
	Call   MType = 'C'
	Signal MType = 'S'
	Resp   MType = 'R'
)

func (t MType) valid() bool {
	return t == Call || t == Signal || t == Resp
}

// Message is the decoded form of one wire frame.
type Message struct {
	MType MType
	ReqID int64
	More  bool
	Abort bool

	// Data and Error are opaque JSON payloads; exactly one is meaningful.
	// Both nil means "no payload" (e.g. a stream-terminating frame).
	Data  []byte
	Error []byte
}

// HasPayload reports whether m carries a Data or Error payload.
func (m Message) HasPayload() bool {
	return m.Data != nil || m.Error != nil
}
