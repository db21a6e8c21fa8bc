package rbgrid

import "fmt"

type grantKind uint8

const (
	kindInterval grantKind = iota
	kindRBGs
)

// Grant is a PRB allocation expressed either as a contiguous interval
// (resource allocation type 1) or as an RBG bitmap (type 0). The zero value
// is an empty interval.
type Grant struct {
	kind     grantKind
	interval PRBInterval
	rbgs     Bitmap
}

func GrantFromInterval(i PRBInterval) Grant { return Grant{kind: kindInterval, interval: i} }

func GrantFromRBGs(rbgs Bitmap) Grant { return Grant{kind: kindRBGs, rbgs: rbgs.Clone()} }

// IsAllocType0 reports an RBG bitmap grant.
func (g Grant) IsAllocType0() bool { return g.kind == kindRBGs }

// IsAllocType1 reports a contiguous interval grant.
func (g Grant) IsAllocType1() bool { return g.kind == kindInterval }

// Interval returns the PRB interval. It panics on an RBG grant.
func (g Grant) Interval() PRBInterval {
	if g.kind != kindInterval {
		panic("rbgrid: grant is not a PRB interval")
	}
	return g.interval
}

// RBGs returns the RBG bitmap. It panics on an interval grant.
func (g Grant) RBGs() Bitmap {
	if g.kind != kindRBGs {
		panic("rbgrid: grant is not an RBG bitmap")
	}
	return g.rbgs
}

func (g Grant) Empty() bool {
	if g.kind == kindRBGs {
		return g.rbgs.None()
	}
	return g.interval.Empty()
}

// SameShape reports whether o could carry the same transport block as g:
// same allocation type and the same number of RBGs or PRBs.
func (g Grant) SameShape(o Grant) bool {
	if g.kind != o.kind {
		return false
	}
	if g.kind == kindRBGs {
		return g.rbgs.Count() == o.rbgs.Count()
	}
	return g.interval.Length() == o.interval.Length()
}

func (g Grant) Clone() Grant {
	if g.kind == kindRBGs {
		g.rbgs = g.rbgs.Clone()
	}
	return g
}

func (g Grant) Equal(o Grant) bool {
	if g.kind != o.kind {
		return false
	}
	if g.kind == kindRBGs {
		return g.rbgs.Equal(o.rbgs)
	}
	return g.interval == o.interval
}

func (g Grant) String() string {
	if g.kind == kindRBGs {
		return fmt.Sprintf("rbgs=0x%x", g.rbgs.ToUint64())
	}
	return "prbs=" + g.interval.String()
}
