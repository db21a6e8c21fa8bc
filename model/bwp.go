package model

// SearchSpaceType distinguishes common and UE-specific search spaces.
type SearchSpaceType int

const (
	SearchSpaceCommon0 SearchSpaceType = iota
	SearchSpaceCommon1
	SearchSpaceCommon3
	SearchSpaceUESpecific
)

func (t SearchSpaceType) IsCommon() bool { return t != SearchSpaceUESpecific }

func (t SearchSpaceType) String() string {
	switch t {
	case SearchSpaceCommon0:
		return "common0"
	case SearchSpaceCommon1:
		return "common1"
	case SearchSpaceCommon3:
		return "common3"
	case SearchSpaceUESpecific:
		return "ue"
	default:
		return "unknown"
	}
}

// NofAggregationLevels is the number of PDCCH aggregation levels (1,2,4,8,16).
const NofAggregationLevels = 5

// CoresetConfig is a control-resource set. Each frequency group spans 6 PRBs.
type CoresetConfig struct {
	ID         int `json:"id"`
	StartRB    int `json:"start_rb"`
	FreqGroups int `json:"freq_groups"`
	Duration   int `json:"duration"`
}

// NofCCEs returns the number of control-channel elements of the coreset.
func (c CoresetConfig) NofCCEs() int { return c.FreqGroups * c.Duration }

// NofPRB returns the coreset bandwidth.
func (c CoresetConfig) NofPRB() int { return c.FreqGroups * 6 }

// SearchSpaceConfig lists the PDCCH candidates per aggregation index.
type SearchSpaceConfig struct {
	ID            int                       `json:"id"`
	CoresetID     int                       `json:"coreset_id"`
	Type          SearchSpaceType           `json:"type"`
	NofCandidates [NofAggregationLevels]int `json:"nof_candidates"`
}

// BWPConfig is one bandwidth part of a cell.
type BWPConfig struct {
	ID              int                 `json:"id"`
	StartRB         int                 `json:"start_rb"`
	NofPRB          int                 `json:"nof_prb"`
	RBGConfig1      bool                `json:"rbg_config1"`
	Coresets        []CoresetConfig     `json:"coresets"`
	SearchSpaces    []SearchSpaceConfig `json:"search_spaces"`
	RASearchSpaceID int                 `json:"ra_search_space_id"`
	RARWindowSize   int                 `json:"rar_window_size"`
	K0              int                 `json:"k0"`
	K2              int                 `json:"k2"`
	MinK1           int                 `json:"min_k1"`
	PDSCHSymbols    int                 `json:"pdsch_symbols"`
	PUSCHSymbols    int                 `json:"pusch_symbols"`
}

// Coreset returns the coreset with the given id.
func (b *BWPConfig) Coreset(id int) (CoresetConfig, bool) {
	for _, c := range b.Coresets {
		if c.ID == id {
			return c, true
		}
	}
	return CoresetConfig{}, false
}

// SearchSpace returns the search space with the given id.
func (b *BWPConfig) SearchSpace(id int) (SearchSpaceConfig, bool) {
	for _, ss := range b.SearchSpaces {
		if ss.ID == id {
			return ss, true
		}
	}
	return SearchSpaceConfig{}, false
}

// DefaultBWPConfig returns a BWP with coreset 0 (SI/RA) and coreset 1 (UE
// data), common search spaces 0 and 1 and a UE-specific search space 2.
func DefaultBWPConfig(nofPRB int) BWPConfig {
	groups := nofPRB / 6
	if groups > 8 {
		groups = 8
	}
	return BWPConfig{
		ID:         0,
		StartRB:    0,
		NofPRB:     nofPRB,
		RBGConfig1: true,
		Coresets: []CoresetConfig{
			{ID: 0, StartRB: 0, FreqGroups: groups, Duration: 2},
			{ID: 1, StartRB: 0, FreqGroups: nofPRB / 6, Duration: 2},
		},
		SearchSpaces: []SearchSpaceConfig{
			{ID: 0, CoresetID: 0, Type: SearchSpaceCommon0, NofCandidates: [NofAggregationLevels]int{0, 0, 2, 1, 0}},
			{ID: 1, CoresetID: 0, Type: SearchSpaceCommon1, NofCandidates: [NofAggregationLevels]int{0, 0, 2, 1, 0}},
			{ID: 2, CoresetID: 1, Type: SearchSpaceUESpecific, NofCandidates: [NofAggregationLevels]int{4, 4, 2, 1, 0}},
		},
		RASearchSpaceID: 1,
		RARWindowSize:   10,
		K0:              0,
		K2:              4,
		MinK1:           4,
		PDSCHSymbols:    13,
		PUSCHSymbols:    14,
	}
}
