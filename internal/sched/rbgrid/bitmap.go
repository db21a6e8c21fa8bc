// Package rbgrid tracks resource-block occupancy of a bandwidth part and
// describes PRB grants.
package rbgrid

import (
	"math/bits"
	"strings"
)

// Bitmap is a fixed-length bitset backed by 64-bit words. Index 0 is the
// lowest PRB/RBG/CCE.
type Bitmap struct {
	n     int
	words []uint64
}

// NewBitmap returns an all-zero bitmap of n bits.
func NewBitmap(n int) Bitmap {
	if n < 0 {
		n = 0
	}
	return Bitmap{n: n, words: make([]uint64, (n+63)/64)}
}

// BitmapFromUint64 builds an n-bit bitmap from the low bits of v.
func BitmapFromUint64(n int, v uint64) Bitmap {
	b := NewBitmap(n)
	if len(b.words) > 0 {
		b.words[0] = v
		b.trim()
	}
	return b
}

func (b Bitmap) Len() int { return b.n }

func (b *Bitmap) Set(i int) {
	b.check(i)
	b.words[i/64] |= 1 << uint(i%64)
}

func (b *Bitmap) Unset(i int) {
	b.check(i)
	b.words[i/64] &^= 1 << uint(i%64)
}

func (b Bitmap) Test(i int) bool {
	b.check(i)
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

// Fill sets bits [start, stop).
func (b *Bitmap) Fill(start, stop int) {
	for i := start; i < stop; i++ {
		b.words[i/64] |= 1 << uint(i%64)
	}
}

// Reset clears all bits.
func (b *Bitmap) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}

func (b Bitmap) Any() bool {
	for _, w := range b.words {
		if w != 0 {
			return true
		}
	}
	return false
}

func (b Bitmap) None() bool { return !b.Any() }

// All reports whether every bit is set.
func (b Bitmap) All() bool { return b.Count() == b.n }

// AnyRange reports whether any bit in [start, stop) is set.
func (b Bitmap) AnyRange(start, stop int) bool {
	if start < 0 {
		start = 0
	}
	if stop > b.n {
		stop = b.n
	}
	for i := start; i < stop; {
		w := b.words[i/64] >> uint(i%64)
		span := 64 - i%64
		if stop-i < span {
			span = stop - i
			w &= (1 << uint(span)) - 1
		}
		if w != 0 {
			return true
		}
		i += span
	}
	return false
}

func (b Bitmap) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Intersects reports whether b and o share a set bit.
func (b Bitmap) Intersects(o Bitmap) bool {
	n := min(len(b.words), len(o.words))
	for i := 0; i < n; i++ {
		if b.words[i]&o.words[i] != 0 {
			return true
		}
	}
	return false
}

// Or sets every bit set in o.
func (b *Bitmap) Or(o Bitmap) {
	n := min(len(b.words), len(o.words))
	for i := 0; i < n; i++ {
		b.words[i] |= o.words[i]
	}
	b.trim()
}

// And clears every bit not set in o.
func (b *Bitmap) And(o Bitmap) {
	for i := range b.words {
		if i < len(o.words) {
			b.words[i] &= o.words[i]
		} else {
			b.words[i] = 0
		}
	}
}

// FindLowest returns the lowest index in [start, stop) whose bit equals
// value, or -1.
func (b Bitmap) FindLowest(start, stop int, value bool) int {
	if stop > b.n {
		stop = b.n
	}
	for i := max(start, 0); i < stop; i++ {
		if b.Test(i) == value {
			return i
		}
	}
	return -1
}

// ToUint64 returns the low 64 bits.
func (b Bitmap) ToUint64() uint64 {
	if len(b.words) == 0 {
		return 0
	}
	return b.words[0]
}

func (b Bitmap) Clone() Bitmap {
	c := Bitmap{n: b.n, words: make([]uint64, len(b.words))}
	copy(c.words, b.words)
	return c
}

// CopyFrom overwrites b with o without reallocating when sizes match.
func (b *Bitmap) CopyFrom(o Bitmap) {
	if len(b.words) != len(o.words) {
		*b = o.Clone()
		return
	}
	b.n = o.n
	copy(b.words, o.words)
}

func (b Bitmap) Equal(o Bitmap) bool {
	if b.n != o.n {
		return false
	}
	for i := range b.words {
		if b.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// String renders the bitmap MSB first, like a register dump.
func (b Bitmap) String() string {
	var sb strings.Builder
	sb.Grow(b.n)
	for i := b.n - 1; i >= 0; i-- {
		if b.Test(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (b *Bitmap) trim() {
	if rem := b.n % 64; rem != 0 && len(b.words) > 0 {
		b.words[len(b.words)-1] &= (1 << uint(rem)) - 1
	}
}

func (b Bitmap) check(i int) {
	if i < 0 || i >= b.n {
		panic("rbgrid: bit index out of range")
	}
}
