package stablebt

import (
	"encoding/binary"
	"encoding/json"
)

var (
	_ Codec[[]byte] = new(BytesCodec)
	_ Codec[string] = new(StringCodec)
	_ Codec[uint64] = new(Uint64Codec)
	_ Codec[uint32] = new(Uint32Codec)
	_ Codec[string] = new(JsonTypeCodec[string])
)

// Codec converts between a key or value type and its byte form. The law is
// Unmarshal(Marshal(v)) == v for every representable v; Marshal output must
// stay within the size bound configured for its role. Keys compare
// byte-lexicographically over the marshaled form, so integer key codecs use
// big-endian encoding to keep byte order equal to numeric order.
type Codec[T any] interface {
	Unmarshal(data []byte, v *T) error
	Marshal(v *T) ([]byte, error)
}

type BytesCodec struct{}

func (b BytesCodec) Unmarshal(data []byte, v *[]byte) error {
	*v = data
	return nil
}

func (b BytesCodec) Marshal(v *[]byte) ([]byte, error) {
	return *v, nil
}

type StringCodec struct{}

func (s StringCodec) Unmarshal(data []byte, v *string) error {
	*v = string(data)
	return nil
}

func (s StringCodec) Marshal(v *string) ([]byte, error) {
	return []byte(*v), nil
}

type Uint64Codec struct{}

func (u Uint64Codec) Unmarshal(data []byte, v *uint64) error {
	*v = binary.BigEndian.Uint64(data)
	return nil
}

func (u Uint64Codec) Marshal(v *uint64) (b []byte, err error) {
	b = binary.BigEndian.AppendUint64(b, *v)
	return
}

type Uint32Codec struct{}

func (u Uint32Codec) Unmarshal(data []byte, v *uint32) error {
	*v = binary.BigEndian.Uint32(data)
	return nil
}

func (u Uint32Codec) Marshal(v *uint32) (b []byte, err error) {
	b = binary.BigEndian.AppendUint32(b, *v)
	return
}

type JsonTypeCodec[T any] struct{}

func (j JsonTypeCodec[T]) Unmarshal(data []byte, v *T) error {
	return json.Unmarshal(data, v)
}

func (j JsonTypeCodec[T]) Marshal(v *T) ([]byte, error) {
	return json.Marshal(v)
}
