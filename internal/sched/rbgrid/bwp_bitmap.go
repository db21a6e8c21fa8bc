package rbgrid

// RBGSize returns the nominal RBG size P for a BWP of nofPRB PRBs.
func RBGSize(nofPRB int, config1 bool) int {
	var p int
	switch {
	case nofPRB <= 36:
		p = 2
	case nofPRB <= 72:
		p = 4
	case nofPRB <= 144:
		p = 8
	default:
		p = 16
	}
	if !config1 && p < 16 {
		p *= 2
	}
	return p
}

// BWPBitmap keeps the PRB and RBG occupancy of one BWP direction in sync. An
// RBG is occupied as soon as any of its PRBs is.
type BWPBitmap struct {
	prbs   Bitmap
	rbgs   Bitmap
	p      int
	offset int
}

// NewBWPBitmap creates an empty occupancy map for a BWP starting at startRB.
func NewBWPBitmap(nofPRB, startRB int, config1 bool) BWPBitmap {
	p := RBGSize(nofPRB, config1)
	offset := startRB % p
	nofRBG := (nofPRB + offset + p - 1) / p
	return BWPBitmap{prbs: NewBitmap(nofPRB), rbgs: NewBitmap(nofRBG), p: p, offset: offset}
}

func (b *BWPBitmap) PRBs() Bitmap { return b.prbs }
func (b *BWPBitmap) RBGs() Bitmap { return b.rbgs }
func (b *BWPBitmap) NofPRB() int  { return b.prbs.Len() }
func (b *BWPBitmap) NofRBG() int  { return b.rbgs.Len() }
func (b *BWPBitmap) P() int       { return b.p }

// RBGRange returns the PRB range covered by RBG rbg.
func (b *BWPBitmap) RBGRange(rbg int) PRBInterval {
	start := rbg*b.p - b.offset
	stop := start + b.p
	if start < 0 {
		start = 0
	}
	if stop > b.prbs.Len() {
		stop = b.prbs.Len()
	}
	return PRBInterval{start: start, stop: stop}
}

func (b *BWPBitmap) prbToRBG(prb int) int { return (prb + b.offset) / b.p }

// RBGToPRBs expands an RBG bitmap into PRBs.
func (b *BWPBitmap) RBGToPRBs(rbgs Bitmap) Bitmap {
	prbs := NewBitmap(b.prbs.Len())
	for i := 0; i < rbgs.Len(); i++ {
		if rbgs.Test(i) {
			r := b.RBGRange(i)
			prbs.Fill(r.start, r.stop)
		}
	}
	return prbs
}

// NofPRBs returns the number of PRBs a grant occupies in this BWP.
func (b *BWPBitmap) NofPRBs(g Grant) int {
	if g.IsAllocType1() {
		return g.Interval().Length()
	}
	return b.RBGToPRBs(g.RBGs()).Count()
}

// Fits reports whether g is non-empty and addresses only PRBs or RBGs of
// this BWP.
func (b *BWPBitmap) Fits(g Grant) bool {
	if g.Empty() {
		return false
	}
	if g.IsAllocType1() {
		return g.Interval().Stop() <= b.prbs.Len()
	}
	rbgs := g.RBGs()
	return rbgs.FindLowest(b.rbgs.Len(), rbgs.Len(), true) < 0
}

// Collides reports whether any PRB of g is already occupied.
func (b *BWPBitmap) Collides(g Grant) bool {
	if g.IsAllocType1() {
		i := g.Interval()
		return b.prbs.AnyRange(i.start, i.stop)
	}
	return b.rbgs.Intersects(g.RBGs())
}

// Add marks the PRBs of g as occupied.
func (b *BWPBitmap) Add(g Grant) {
	if g.IsAllocType1() {
		i := g.Interval()
		if i.Empty() {
			return
		}
		b.prbs.Fill(i.start, i.stop)
		for r := b.prbToRBG(i.start); r <= b.prbToRBG(i.stop-1); r++ {
			b.rbgs.Set(r)
		}
		return
	}
	b.rbgs.Or(g.RBGs())
	b.prbs.Or(b.RBGToPRBs(g.RBGs()))
}

func (b *BWPBitmap) Reset() {
	b.prbs.Reset()
	b.rbgs.Reset()
}

func (b *BWPBitmap) Clone() BWPBitmap {
	c := *b
	c.prbs = b.prbs.Clone()
	c.rbgs = b.rbgs.Clone()
	return c
}
