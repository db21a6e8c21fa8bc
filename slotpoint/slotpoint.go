// Package slotpoint implements the NR slot counter used to index every
// scheduling decision. A slot point combines a numerology with a slot count
// that wraps once per hyperframe (1024 radio frames).
package slotpoint

import "fmt"

const (
	// MaxNumerology is the largest supported subcarrier-spacing index.
	MaxNumerology = 4
	// NofFramesPerHyperframe is the SFN period.
	NofFramesPerHyperframe = 1024
	// NofSubframesPerFrame is fixed at 10 regardless of numerology.
	NofSubframesPerFrame = 10

	invalidNumerology uint8 = 255
)

// NofSlotsPerSubframe returns 2^mu.
func NofSlotsPerSubframe(mu uint8) uint32 { return 1 << mu }

// NofSlotsPerFrame returns 10 * 2^mu.
func NofSlotsPerFrame(mu uint8) uint32 { return NofSubframesPerFrame << mu }

// NofSlotsPerHyperframe returns the wrap length of the slot count.
func NofSlotsPerHyperframe(mu uint8) uint32 {
	return NofFramesPerHyperframe * NofSlotsPerFrame(mu)
}

// SlotPoint is a numerology-aware slot counter. The zero value is NOT valid;
// use Invalid() or New to construct one.
type SlotPoint struct {
	numIdx uint8
	count  uint32
}

// Invalid returns a slot point that reports Valid() == false.
func Invalid() SlotPoint { return SlotPoint{numIdx: invalidNumerology} }

// New builds a slot point from a raw count, reduced modulo the hyperframe.
func New(mu uint8, count uint32) SlotPoint {
	if mu > MaxNumerology {
		panic(fmt.Sprintf("slotpoint: invalid numerology %d", mu))
	}
	return SlotPoint{numIdx: mu, count: count % NofSlotsPerHyperframe(mu)}
}

// NewFromSFN builds a slot point from a system frame number and slot index.
func NewFromSFN(mu uint8, sfn, slotIdx uint32) SlotPoint {
	if slotIdx >= NofSlotsPerFrame(mu) {
		panic(fmt.Sprintf("slotpoint: slot index %d out of range for numerology %d", slotIdx, mu))
	}
	return New(mu, (sfn%NofFramesPerHyperframe)*NofSlotsPerFrame(mu)+slotIdx)
}

func (s SlotPoint) Valid() bool { return s.numIdx <= MaxNumerology }

// Clear invalidates the slot point.
func (s *SlotPoint) Clear() { *s = Invalid() }

func (s SlotPoint) Numerology() uint8 { return s.numIdx }

// ToUint returns the raw slot count within the hyperframe.
func (s SlotPoint) ToUint() uint32 { return s.count }

func (s SlotPoint) NofSlotsPerFrame() uint32 { return NofSlotsPerFrame(s.numIdx) }

// SFN returns the system frame number.
func (s SlotPoint) SFN() uint32 { return s.count / s.NofSlotsPerFrame() }

// SlotIdx returns the slot index within the frame.
func (s SlotPoint) SlotIdx() uint32 { return s.count % s.NofSlotsPerFrame() }

// SubframeIdx returns the subframe index within the frame.
func (s SlotPoint) SubframeIdx() uint32 { return s.SlotIdx() / NofSlotsPerSubframe(s.numIdx) }

// Add advances the slot point by n slots; negative n moves backwards.
func (s SlotPoint) Add(n int) SlotPoint {
	s.mustBeValid()
	hf := int64(NofSlotsPerHyperframe(s.numIdx))
	c := (int64(s.count) + int64(n)) % hf
	if c < 0 {
		c += hf
	}
	s.count = uint32(c)
	return s
}

// Sub returns the signed slot distance s - o. Distances larger than half a
// hyperframe wrap around, so the result is always in (-hf/2, hf/2].
func (s SlotPoint) Sub(o SlotPoint) int {
	s.mustMatch(o)
	hf := int(NofSlotsPerHyperframe(s.numIdx))
	d := int(s.count) - int(o.count)
	if d > hf/2 {
		d -= hf
	} else if d <= -hf/2 {
		d += hf
	}
	return d
}

func (s SlotPoint) Equal(o SlotPoint) bool   { return s.numIdx == o.numIdx && s.count == o.count }
func (s SlotPoint) Less(o SlotPoint) bool    { return s.Sub(o) < 0 }
func (s SlotPoint) LessEq(o SlotPoint) bool  { return s.Sub(o) <= 0 }
func (s SlotPoint) Greater(o SlotPoint) bool { return s.Sub(o) > 0 }

func (s SlotPoint) GreaterEq(o SlotPoint) bool { return s.Sub(o) >= 0 }

func (s SlotPoint) String() string {
	if !s.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d.%d", s.SFN(), s.SlotIdx())
}

func (s SlotPoint) mustBeValid() {
	if !s.Valid() {
		panic("slotpoint: operation on invalid slot point")
	}
}

func (s SlotPoint) mustMatch(o SlotPoint) {
	s.mustBeValid()
	o.mustBeValid()
	if s.numIdx != o.numIdx {
		panic(fmt.Sprintf("slotpoint: numerology mismatch %d != %d", s.numIdx, o.numIdx))
	}
}
