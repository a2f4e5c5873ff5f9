// Package codec serializes cached entity values.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage in a shared cache.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ByName returns a general-purpose codec: "json" (or ""), "cbor", "cbor-det"
// (deterministic CBOR) or "msgpack". Protobuf needs a message constructor
// and is built with NewProtobuf.
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSON[V]{}, nil
	case "cbor", "cbor-det":
		c, err := NewCBOR[V](name == "cbor-det")
		if err != nil {
			return nil, err
		}
		return c, nil
	case "msgpack":
		return Msgpack[V]{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
