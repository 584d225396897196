package codec

import "encoding/json"

/*
BinaryCodec defines the canonical-bytes encoding used for hashing and signing
core structures (blocks, QCs, votes, commands). The teacher generates this
codec from protobuf .proto definitions via protoc; regenerating .pb.go files
is not possible in this environment (no protoc invocation, no go toolchain),
so this codec instead uses encoding/json, which produces a deterministic byte
stream for a fixed Go struct (field order follows declaration order and is
never randomized) — sufficient for canonical hashing and signing. See
DESIGN.md for the justification of this standard-library choice.
*/

// BinaryCodec is the encode/decode surface every persisted or signed
// structure in this module is read and written through.
type BinaryCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, ptr any) error
}

var _ BinaryCodec = &JSONCodec{}

// JSONCodec is the canonical BinaryCodec implementation.
type JSONCodec struct{}

func (j *JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (j *JSONCodec) Unmarshal(data []byte, ptr any) error { return json.Unmarshal(data, ptr) }

// Default is the package-level codec instance that lib and the other packages call directly.
var Default BinaryCodec = &JSONCodec{}
