package cache

import "github.com/vmihailenco/msgpack/v5"

// Codec turns entities into bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// MsgpackCodec encodes with msgpack. Struct fields use their msgpack tags,
// falling back to the Go field name.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
