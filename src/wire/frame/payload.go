package frame

import "encoding/json"

// PayloadCodec serializes the opaque payload carried by Data/Error. The
// Codec itself treats payloads as opaque bytes; this is the one concrete
// encoding both peers must agree on, chosen once at construction time.
type PayloadCodec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSONPayloadCodec is the engine's chosen payload encoding.
type JSONPayloadCodec struct{}

func (JSONPayloadCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONPayloadCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// DefaultPayloadCodec is the shared JSON payload codec instance.
var DefaultPayloadCodec PayloadCodec = JSONPayloadCodec{}
