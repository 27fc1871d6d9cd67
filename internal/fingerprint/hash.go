package fingerprint

import (
	"encoding/binary"
	"hash"
	"math"
	"time"

	"github.com/spaolacci/murmur3"
)

// =============================================================================
// Hash Builder
// =============================================================================

// HashBuilder provides a fluent API for building content hashes.
//
// Usage:
//
//	h := NewHashBuilder().
//	    String(row.EventID).
//	    Time(row.EventTS).
//	    Uint64(row.BytesSent).
//	    Build()
//
// The hash is deterministic - same inputs always produce the same output.
// Order of operations matters.
type HashBuilder struct {
	h   hash.Hash64
	buf [8]byte
}

// NewHashBuilder creates a new hash builder.
func NewHashBuilder() *HashBuilder {
	return &HashBuilder{h: murmur3.New64()}
}

// String adds a string value to the hash.
func (b *HashBuilder) String(s string) *HashBuilder {
	b.h.Write([]byte(s))
	b.h.Write([]byte{0}) // Separator to avoid collisions
	return b
}

// Int32 adds an int32 to the hash.
func (b *HashBuilder) Int32(i int32) *HashBuilder {
	return b.Uint32(uint32(i))
}

// Uint32 adds a uint32 to the hash.
func (b *HashBuilder) Uint32(i uint32) *HashBuilder {
	binary.LittleEndian.PutUint32(b.buf[:4], i)
	b.h.Write(b.buf[:4])
	return b
}

// Uint64 adds a uint64 to the hash.
func (b *HashBuilder) Uint64(i uint64) *HashBuilder {
	binary.LittleEndian.PutUint64(b.buf[:], i)
	b.h.Write(b.buf[:])
	return b
}

// Float64 adds a float by its IEEE-754 bits.
func (b *HashBuilder) Float64(f float64) *HashBuilder {
	return b.Uint64(math.Float64bits(f))
}

// Time adds a timestamp at second precision in UTC.
func (b *HashBuilder) Time(t time.Time) *HashBuilder {
	return b.Uint64(uint64(t.UTC().Unix()))
}

// Value adds a scanned column value. Each kind is tagged so that equal bytes
// of different types never collide.
func (b *HashBuilder) Value(v any) *HashBuilder {
	switch x := v.(type) {
	case string:
		b.h.Write([]byte{'s'})
		return b.String(x)
	case time.Time:
		b.h.Write([]byte{'t'})
		return b.Time(x)
	case uint8:
		b.h.Write([]byte{'b', x})
		return b
	case int32:
		b.h.Write([]byte{'i'})
		return b.Int32(x)
	case uint32:
		b.h.Write([]byte{'u'})
		return b.Uint32(x)
	case uint64:
		b.h.Write([]byte{'U'})
		return b.Uint64(x)
	case float32:
		b.h.Write([]byte{'f'})
		return b.Uint32(math.Float32bits(x))
	case float64:
		b.h.Write([]byte{'F'})
		return b.Float64(x)
	case nil:
		b.h.Write([]byte{'n'})
		return b
	default:
		panic("fingerprint: unsupported value type")
	}
}

// Build returns the final hash value.
func (b *HashBuilder) Build() uint64 {
	return b.h.Sum64()
}
