// Package tbs computes transport block sizes and code rates for the 64QAM
// MCS table.
package tbs

import "math"

// MaxMCS is the highest index of the 64QAM table.
const MaxMCS = 28

// MaxCodeRate is the effective code rate ceiling for a first transmission.
const MaxCodeRate = 0.93

type mcsEntry struct {
	qm    int
	r1024 float64
}

var mcsTable = [MaxMCS + 1]mcsEntry{
	{2, 120}, {2, 157}, {2, 193}, {2, 251}, {2, 308}, {2, 379}, {2, 449}, {2, 526}, {2, 602}, {2, 679},
	{4, 340}, {4, 378}, {4, 434}, {4, 490}, {4, 553}, {4, 616}, {4, 658},
	{6, 438}, {6, 466}, {6, 517}, {6, 567}, {6, 616}, {6, 666}, {6, 719}, {6, 772}, {6, 822}, {6, 873}, {6, 910}, {6, 948},
}

var tbsTable = []int{
	24, 32, 40, 48, 56, 64, 72, 80, 88, 96, 104, 112, 120, 128, 136, 144, 152, 160, 168, 176, 184, 192, 208, 224,
	240, 256, 272, 288, 304, 320, 336, 352, 368, 384, 408, 432, 456, 480, 504, 528, 552, 576, 608, 640, 672, 704,
	736, 768, 808, 848, 888, 928, 984, 1032, 1064, 1128, 1160, 1192, 1224, 1256, 1288, 1320, 1352, 1416, 1480,
	1544, 1608, 1672, 1736, 1800, 1864, 1928, 2024, 2088, 2152, 2216, 2280, 2408, 2472, 2536, 2600, 2664, 2728,
	2792, 2856, 2976, 3104, 3240, 3368, 3496, 3624, 3752, 3824,
}

// dmrsREPerPRB assumes one front-loaded type-1 DMRS symbol with no data in
// the DMRS CDM groups.
const dmrsREPerPRB = 12

// Result describes a transport block.
type Result struct {
	TBS      int // bits
	NofRE    int
	Qm       int
	CodeRate float64 // effective, including CRC
}

// Bytes returns the TBS in bytes.
func (r Result) Bytes() int { return r.TBS / 8 }

// Qm returns the modulation order of an MCS index.
func Qm(mcs int) int { return mcsTable[clampMCS(mcs)].qm }

// Compute returns the TBS of nofPRB PRBs over nofSymbols symbols at mcs.
func Compute(nofPRB, nofSymbols, mcs int) Result {
	e := mcsTable[clampMCS(mcs)]
	if nofPRB <= 0 || nofSymbols <= 0 {
		return Result{Qm: e.qm}
	}
	rePerPRB := min(156, 12*nofSymbols-dmrsREPerPRB)
	nre := rePerPRB * nofPRB
	r := e.r1024 / 1024
	ninfo := float64(nre) * r * float64(e.qm)
	t := quantize(ninfo, r)
	return Result{TBS: t, NofRE: nre, Qm: e.qm, CodeRate: codeRate(t, nre, e.qm)}
}

func codeRate(tbs, nre, qm int) float64 {
	if nre == 0 {
		return 0
	}
	crc := 16
	if tbs > 3824 {
		crc = 24
	}
	return float64(tbs+crc) / float64(nre*qm)
}

func quantize(ninfo, r float64) int {
	if ninfo <= 3824 {
		n := max(3, int(math.Floor(math.Log2(ninfo)))-6)
		step := math.Exp2(float64(n))
		np := max(24, int(step*math.Floor(ninfo/step)))
		for _, v := range tbsTable {
			if v >= np {
				return v
			}
		}
		return tbsTable[len(tbsTable)-1]
	}
	n := int(math.Floor(math.Log2(ninfo-24))) - 5
	step := math.Exp2(float64(n))
	np := math.Max(3840, step*math.Round((ninfo-24)/step))
	if r <= 0.25 {
		c := math.Ceil((np + 24) / 3816)
		return int(8*c*math.Ceil((np+24)/(8*c)) - 24)
	}
	if np > 8424 {
		c := math.Ceil((np + 24) / 8424)
		return int(8*c*math.Ceil((np+24)/(8*c)) - 24)
	}
	return int(8*math.Ceil((np+24)/8) - 24)
}

// MinPRBs returns the smallest PRB count whose TBS carries nofBytes, capped
// at maxPRB.
func MinPRBs(nofBytes, nofSymbols, mcs, maxPRB int) int {
	for n := 1; n < maxPRB; n++ {
		if Compute(n, nofSymbols, mcs).Bytes() >= nofBytes {
			return n
		}
	}
	return maxPRB
}

func clampMCS(mcs int) int {
	if mcs < 0 {
		return 0
	}
	if mcs > MaxMCS {
		return MaxMCS
	}
	return mcs
}
