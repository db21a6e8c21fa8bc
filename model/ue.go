package model

// UECarrierConfig activates a serving cell for a UE.
type UECarrierConfig struct {
	CC     int  `json:"cc"`
	Active bool `json:"active"`
	BWPID  int  `json:"bwp_id"`
}

// UEConfig is the scheduler view of a UE's dedicated configuration.
type UEConfig struct {
	Carriers  []UECarrierConfig `json:"carriers"`
	MaxHARQTx int               `json:"max_harq_tx"`
	// SearchSpaces are dedicated search spaces added on top of the BWP ones.
	SearchSpaces []SearchSpaceConfig `json:"search_spaces"`
	SRPeriod     int                 `json:"sr_period"`
	SROffset     int                 `json:"sr_offset"`
	CSIPeriod    int                 `json:"csi_period"`
	CSIOffset    int                 `json:"csi_offset"`
}

// Carrier returns the carrier configuration of cell cc.
func (c *UEConfig) Carrier(cc int) (UECarrierConfig, bool) {
	for _, car := range c.Carriers {
		if car.CC == cc {
			return car, true
		}
	}
	return UECarrierConfig{}, false
}

// DefaultUEConfig activates the given cells with SR every 40 slots and CSI
// every 80 slots.
func DefaultUEConfig(ccs ...int) UEConfig {
	if len(ccs) == 0 {
		ccs = []int{0}
	}
	cfg := UEConfig{MaxHARQTx: 4, SRPeriod: 40, SROffset: 0, CSIPeriod: 80, CSIOffset: 1}
	for _, cc := range ccs {
		cfg.Carriers = append(cfg.Carriers, UECarrierConfig{CC: cc, Active: true})
	}
	return cfg
}
