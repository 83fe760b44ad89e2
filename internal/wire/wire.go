package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1

	flagNull       byte = 1 << 0
	flagCompressed byte = 1 << 1
	knownFlags          = flagNull | flagCompressed
)

// NullSentinel is the payload of every cached "not found" entry.
var NullSentinel = []byte("__swr_null__")

var (
	ErrCorrupt = errors.New("swrcache: corrupt entry")
	magic4     = [...]byte{'S', 'W', 'R', 'C'}
)

// Entry is one cached value. Timestamp is the write time in epoch milliseconds.
// Null entries record a "not found" result and always carry NullSentinel.
type Entry struct {
	Timestamp  int64
	Null       bool
	Compressed bool
	Payload    []byte
}

// NullEntry returns a cached "not found" entry stamped at ts.
func NullEntry(ts int64) Entry {
	return Entry{Timestamp: ts, Null: true, Payload: NullSentinel}
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

const hdrLen = 4 + 1 + 1 + 8 + 4

// Encode: magic(4) | ver(1) | flags(1) | ts(i64 be) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) []byte {
	payload := e.Payload
	var flags byte
	if e.Null {
		flags |= flagNull
		payload = NullSentinel
	}
	if e.Compressed && !e.Null {
		flags |= flagCompressed
	}

	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(flags)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.Timestamp))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode parses b strictly: unknown flags, a non-sentinel null payload and
// trailing bytes are all ErrCorrupt. Payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	flags := b[5]
	if flags&^knownFlags != 0 {
		return Entry{}, ErrCorrupt
	}
	null := flags&flagNull != 0
	compressed := flags&flagCompressed != 0
	if null && compressed {
		return Entry{}, ErrCorrupt
	}

	off := 6
	ts := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}
	payload := b[off : off+vlen]

	if null && !bytes.Equal(payload, NullSentinel) {
		return Entry{}, ErrCorrupt
	}

	return Entry{
		Timestamp:  ts,
		Null:       null,
		Compressed: compressed,
		Payload:    payload,
	}, nil
}
