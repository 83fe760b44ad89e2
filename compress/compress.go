// Package compress shrinks serialized cache payloads with gzip.
//
// Compressed output is kept printable: the gzip stream is base64 encoded and
// prefixed with Marker, so entries survive text-only transports. Payloads below
// Threshold, and payloads that gzip cannot shrink, are returned untouched.
package compress

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

const (
	// Threshold is the smallest payload (in bytes) worth compressing.
	Threshold = 1024
	// Level is the gzip level used for every payload.
	Level = 6
	// Marker prefixes every compressed payload.
	Marker = "gz:"
)

var ErrDecompressionFailed = errors.New("compress: decompression failed")

// Compress returns raw unchanged (compressed=false) when it is smaller than
// Threshold or when the marker+encoded form would not be shorter than raw.
func Compress(raw []byte) (out []byte, compressed bool, err error) {
	return CompressAbove(raw, Threshold)
}

// CompressAbove is Compress with a caller supplied threshold.
func CompressAbove(raw []byte, threshold int) ([]byte, bool, error) {
	if len(raw) < threshold {
		return raw, false, nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, Level)
	if err != nil {
		return nil, false, err
	}
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, false, fmt.Errorf("compress: gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("compress: gzip close: %w", err)
	}

	n := len(Marker) + base64.StdEncoding.EncodedLen(buf.Len())
	if n >= len(raw) {
		return raw, false, nil
	}
	out := make([]byte, n)
	copy(out, Marker)
	base64.StdEncoding.Encode(out[len(Marker):], buf.Bytes())
	return out, true, nil
}

// IsCompressed reports whether b carries the compression marker.
func IsCompressed(b []byte) bool {
	return bytes.HasPrefix(b, []byte(Marker))
}

// Decompress reverses Compress. Input without the marker is returned as is.
// Every failure on marked input wraps ErrDecompressionFailed.
func Decompress(b []byte) ([]byte, error) {
	if !IsCompressed(b) {
		return b, nil
	}
	enc := b[len(Marker):]
	gz := make([]byte, base64.StdEncoding.DecodedLen(len(enc)))
	n, err := base64.StdEncoding.Decode(gz, enc)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecompressionFailed, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(gz[:n]))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip header: %v", ErrDecompressionFailed, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip body: %v", ErrDecompressionFailed, err)
	}
	return out, nil
}
