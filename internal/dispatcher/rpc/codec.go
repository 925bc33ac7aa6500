// Package rpc implements the §6 RPC surface as a hand-rolled gRPC service:
// plain Go structs as request/response types, a JSON encoding.Codec in
// place of protobuf wire encoding, and a manually-authored grpc.ServiceDesc
// in place of protoc-gen-go-grpc output. This trades protobuf's compact
// wire format for a build that needs no protoc step, while keeping gRPC's
// framing, multiplexing, and server-streaming support (§5: "broadcast
// channel sends when lagging" maps directly onto a gRPC server stream).
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements encoding.Codec, the interface grpc.Server/ClientConn
// use to (de)serialise every message on the wire.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// callContentSubtype is passed via grpc.CallContentSubtype so the client
// picks the same codec the server registered (grpc defaults to proto
// otherwise).
func callContentSubtype() string { return codecName }
