package params

import "github.com/signalsfoundry/nr-mac-scheduler/model"

var hashA = [3]uint64{39827, 39829, 39839}

const hashD = 65537

// NewCCETable computes the candidate positions of search space ss in coreset
// cs with the PDCCH hashing function. Common search spaces use Y=0; UE
// specific ones seed the hash with rnti.
func NewCCETable(cs model.CoresetConfig, ss model.SearchSpaceConfig, rnti uint16, slotsPerFrame int) CCETable {
	ncce := cs.NofCCEs()
	table := make(CCETable, slotsPerFrame)
	y := uint64(rnti)
	a := hashA[cs.ID%3]
	for slot := 0; slot < slotsPerFrame; slot++ {
		var yn uint64
		if !ss.Type.IsCommon() {
			y = (a * y) % hashD
			yn = y
		}
		for agg := 0; agg < model.NofAggregationLevels; agg++ {
			l := 1 << agg
			nofPos := ncce / l
			m := min(ss.NofCandidates[agg], nofPos)
			if m <= 0 {
				continue
			}
			pos := make([]uint32, 0, m)
			for c := 0; c < m; c++ {
				idx := (int(yn) + c*ncce/(l*m)) % nofPos
				pos = append(pos, uint32(l*idx))
			}
			table[slot][agg] = pos
		}
	}
	return table
}
