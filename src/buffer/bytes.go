// Package buffer implements Bytes, the copy-on-write byte sequence that all
// wire structures are built from.
//
// Any number of Bytes values may share one backing store. The store records a
// high-water mark: the furthest offset any view has ever been able to see.
// A mutation only ever writes in place into the region past that mark, which
// it first reserves atomically, so no other view can observe the write. Any
// other mutation takes a private copy first. This makes plain assignment
// (b2 := b1) a safe, constant-time copy, and mutating b2 never changes b1.
package buffer

import (
	"bytes"
	"encoding/hex"
	"sync/atomic"
)

// minCapacity is the smallest backing store allocated when growing.
const minCapacity = 32

type store struct {
	buf []byte // len(buf) == cap(buf), bytes at or past hwm are always zero
	hwm atomic.Int64
}

func newStore(capacity, used int) *store {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	st := &store{buf: make([]byte, capacity)}
	st.hwm.Store(int64(used))
	return st
}

// Bytes is a copy-on-write view onto a shared backing store. The zero value
// is an empty buffer ready for use.
type Bytes struct {
	st  *store
	off int
	n   int
}

// New returns a Bytes holding a private copy of b.
func New(b []byte) Bytes {
	var out Bytes
	out.AppendBytes(b)
	return out
}

// FromString returns a Bytes holding the raw bytes of s.
func FromString(s string) Bytes {
	var out Bytes
	out.AppendBytes([]byte(s))
	return out
}

// FromHex decodes a hex string.
func FromHex(s string) (Bytes, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Bytes{}, err
	}
	return New(b), nil
}

// Len returns the number of bytes in the view.
func (b Bytes) Len() int { return b.n }

// Bool is true iff the buffer is non-empty.
func (b Bytes) Bool() bool { return b.n > 0 }

// Bytes returns a read-only view of the contents. The returned slice has its
// capacity clipped, so appending to it always reallocates, but its elements
// must not be modified.
func (b Bytes) Bytes() []byte {
	if b.st == nil || b.n == 0 {
		return nil
	}
	end := b.off + b.n
	return b.st.buf[b.off:end:end]
}

// Clone returns a private copy of the contents.
func (b Bytes) Clone() []byte {
	if b.n == 0 {
		return []byte{}
	}
	out := make([]byte, b.n)
	copy(out, b.Bytes())
	return out
}

// At returns the byte at index i. It panics if i is out of range, like a
// slice index would.
func (b Bytes) At(i int) byte {
	return b.Bytes()[i]
}

// Left returns the first n bytes, clamped to the available length.
func (b Bytes) Left(n int) Bytes {
	if n < 0 {
		n = 0
	}
	if n > b.n {
		n = b.n
	}
	return Bytes{st: b.st, off: b.off, n: n}
}

// Right returns the last n bytes, clamped to the available length.
func (b Bytes) Right(n int) Bytes {
	if n < 0 {
		n = 0
	}
	if n > b.n {
		n = b.n
	}
	return Bytes{st: b.st, off: b.off + b.n - n, n: n}
}

// Mid returns the bytes starting at start. With a length argument at most
// that many bytes are returned, otherwise everything up to the end.
func (b Bytes) Mid(start int, length ...int) Bytes {
	if start < 0 {
		start = 0
	}
	if start >= b.n {
		return Bytes{}
	}
	n := b.n - start
	if len(length) > 0 && length[0] >= 0 && length[0] < n {
		n = length[0]
	}
	return Bytes{st: b.st, off: b.off + start, n: n}
}

// Compare orders buffers lexicographically by content.
func (b Bytes) Compare(o Bytes) int {
	return bytes.Compare(b.Bytes(), o.Bytes())
}

// Equal reports whether both buffers hold the same bytes.
func (b Bytes) Equal(o Bytes) bool {
	return bytes.Equal(b.Bytes(), o.Bytes())
}

// EqualBytes reports whether the buffer holds exactly p.
func (b Bytes) EqualBytes(p []byte) bool {
	return bytes.Equal(b.Bytes(), p)
}

// Key returns the contents as a string, suitable for use as a map key.
func (b Bytes) Key() string {
	return string(b.Bytes())
}

// String returns the raw contents as a string.
func (b Bytes) String() string {
	return string(b.Bytes())
}

// Hex returns the lowercase hex encoding of the contents.
func (b Bytes) Hex() string {
	return hex.EncodeToString(b.Bytes())
}

// Assign makes b a view of the same contents as src. No bytes are copied.
func (b *Bytes) Assign(src Bytes) {
	*b = src
}

// AssignBytes replaces the contents with a copy of p.
func (b *Bytes) AssignBytes(p []byte) {
	*b = Bytes{}
	b.AppendBytes(p)
}

// AssignString replaces the contents with the raw bytes of s.
func (b *Bytes) AssignString(s string) {
	b.AssignBytes([]byte(s))
}

// Clear empties the buffer without touching any shared store.
func (b *Bytes) Clear() {
	*b = Bytes{}
}

// Append adds the contents of src to the end of b.
func (b *Bytes) Append(src Bytes) {
	b.AppendBytes(src.Bytes())
}

// AppendByte adds a single byte.
func (b *Bytes) AppendByte(c byte) {
	b.AppendBytes([]byte{c})
}

// AppendString adds the raw bytes of s.
func (b *Bytes) AppendString(s string) {
	b.AppendBytes([]byte(s))
}

// AppendBytes adds a copy of p to the end of b.
func (b *Bytes) AppendBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	end := b.off + b.n
	if b.reserve(len(p)) {
		copy(b.st.buf[end:], p)
		b.n += len(p)
		return
	}
	old := b.n
	b.realloc(b.n+len(p), 2*(b.n+len(p)))
	copy(b.st.buf[old:b.n], p)
}

// Resize changes the length to n. Growing pads with zero bytes; shrinking
// only shortens the view.
func (b *Bytes) Resize(n int) {
	if n < 0 {
		n = 0
	}
	if n <= b.n {
		b.n = n
		return
	}
	if b.reserve(n - b.n) {
		// Bytes past the high-water mark have never been written.
		b.n = n
		return
	}
	b.realloc(n, n)
}

// Grow makes room for at least extra more bytes without changing the length,
// so that following appends do not reallocate.
func (b *Bytes) Grow(extra int) {
	if extra <= 0 {
		return
	}
	if b.st != nil {
		end := b.off + b.n
		if int64(end) == b.st.hwm.Load() && end+extra <= len(b.st.buf) {
			return
		}
	}
	b.realloc(b.n, b.n+extra)
}

// reserve tries to claim extra bytes directly after the view inside the
// current store. It only succeeds if the view ends exactly at the store's
// high-water mark, meaning no other view has ever seen those bytes.
func (b *Bytes) reserve(extra int) bool {
	if b.st == nil {
		return false
	}
	end := b.off + b.n
	if end+extra > len(b.st.buf) {
		return false
	}
	return b.st.hwm.CompareAndSwap(int64(end), int64(end+extra))
}

// realloc moves the view into a fresh private store of at least capacity
// bytes, with the new length n.
func (b *Bytes) realloc(n, capacity int) {
	if capacity < n {
		capacity = n
	}
	st := newStore(capacity, n)
	copy(st.buf, b.Bytes())
	b.st, b.off, b.n = st, 0, n
}
