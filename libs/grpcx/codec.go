package grpcx

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// JSONCodecName is the content subtype for services whose messages are plain
// Go structs instead of generated protobuf types.
const JSONCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// WithJSON makes every call on the connection use the JSON codec.
func WithJSON() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName))
}
