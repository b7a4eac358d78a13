package facade

import (
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/wire/frame"
	"github.com/gristlabs/gristmux/src/wire/stream"
)

// encodeChunks adapts a RowChunk iterator to the opaque []byte chunk
// iterator the RPC Core's StreamingData carries, JSON-encoding each chunk
// as it is pulled. Grounded on the streaming pull loop
// (src/driver/streaming_connection.go), generalized to a codec-driven
// encode step between two Iterator element types. onDone, if given, runs
// after in.Close alongside it (used to return a pool handle once the
// caller has fully let go of the outer stream).
func encodeChunks(codec frame.PayloadCodec, in *stream.Iterator[model.RowChunk], onDone ...func()) *stream.Iterator[[]byte] {
	out := stream.New[[]byte](func() {
		in.Close()
		for _, fn := range onDone {
			fn()
		}
	})
	go func() {
		for {
			res := in.Next()
			if res.Done {
				if res.Err != nil {
					out.SupplyError(res.Err)
				} else {
					out.FinishOk()
				}
				return
			}
			encoded, err := codec.Marshal(res.Chunk)
			if err != nil {
				out.SupplyError(err)
				return
			}
			out.SupplyChunk(encoded)
		}
	}()
	return out
}

// decodeChunks is encodeChunks' inverse: it decodes each opaque []byte
// chunk back into a RowChunk as the consumer pulls it.
func decodeChunks(codec frame.PayloadCodec, in *stream.Iterator[[]byte]) *stream.Iterator[model.RowChunk] {
	out := stream.New[model.RowChunk](in.Close)
	go func() {
		for {
			res := in.Next()
			if res.Done {
				if res.Err != nil {
					out.SupplyError(res.Err)
				} else {
					out.FinishOk()
				}
				return
			}
			var chunk model.RowChunk
			if err := codec.Unmarshal(res.Chunk, &chunk); err != nil {
				out.SupplyError(err)
				return
			}
			out.SupplyChunk(chunk)
		}
	}()
	return out
}
