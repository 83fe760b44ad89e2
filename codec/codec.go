// Package codec serializes cached values to bytes.
//
// JSON is the default: its output is canonical text, which keeps entries
// readable from redis-cli and lets compress decide on plain bytes. Msgpack and
// CBOR trade readability for size; Protobuf serves proto.Message values.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Error wraps a failure from an underlying codec with its direction.
type Error struct {
	Op  string // "encode" | "decode"
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("codec %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func encodeErr(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: "encode", Err: err}
}

func decodeErr(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: "decode", Err: err}
}
