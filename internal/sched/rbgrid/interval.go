package rbgrid

import "fmt"

// PRBInterval is a half-open range of PRBs [start, stop).
type PRBInterval struct {
	start, stop int
}

// NewPRBInterval panics if stop < start.
func NewPRBInterval(start, stop int) PRBInterval {
	if stop < start || start < 0 {
		panic(fmt.Sprintf("rbgrid: invalid PRB interval [%d, %d)", start, stop))
	}
	return PRBInterval{start: start, stop: stop}
}

func (i PRBInterval) Start() int  { return i.start }
func (i PRBInterval) Stop() int   { return i.stop }
func (i PRBInterval) Length() int { return i.stop - i.start }
func (i PRBInterval) Empty() bool { return i.stop == i.start }

func (i PRBInterval) Contains(prb int) bool { return prb >= i.start && prb < i.stop }

// Intersect returns the overlap of i and o, empty if disjoint.
func (i PRBInterval) Intersect(o PRBInterval) PRBInterval {
	s, e := max(i.start, o.start), min(i.stop, o.stop)
	if e <= s {
		return PRBInterval{}
	}
	return PRBInterval{start: s, stop: e}
}

func (i PRBInterval) String() string { return fmt.Sprintf("[%d, %d)", i.start, i.stop) }

// FindEmptyInterval searches prbs from startHint for the first run of free
// PRBs of the requested length. If none exists the largest free run found is
// returned, which may be empty.
func FindEmptyInterval(prbs Bitmap, length, startHint int) PRBInterval {
	var best PRBInterval
	for s := prbs.FindLowest(startHint, prbs.Len(), false); s >= 0; {
		e := prbs.FindLowest(s, prbs.Len(), true)
		if e < 0 {
			e = prbs.Len()
		}
		if e-s >= length {
			return PRBInterval{start: s, stop: s + length}
		}
		if e-s > best.Length() {
			best = PRBInterval{start: s, stop: e}
		}
		s = prbs.FindLowest(e, prbs.Len(), false)
	}
	return best
}

// RIV encodes a contiguous allocation as a type-1 resource indication value
// over a bandwidth of nofPRB.
func RIV(nofPRB int, interval PRBInterval) uint32 {
	l, s := interval.Length(), interval.Start()
	if l-1 <= nofPRB/2 {
		return uint32(nofPRB*(l-1) + s)
	}
	return uint32(nofPRB*(nofPRB-l+1) + (nofPRB - 1 - s))
}

// RIVToInterval decodes a type-1 resource indication value.
func RIVToInterval(nofPRB int, riv uint32) PRBInterval {
	l := int(riv)/nofPRB + 1
	s := int(riv) % nofPRB
	if s+l > nofPRB {
		l = nofPRB - l + 2
		s = nofPRB - 1 - s
	}
	return PRBInterval{start: s, stop: s + l}
}
