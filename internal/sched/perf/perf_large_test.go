//go:build perf_large

package perf

import "testing"

var largeConfig = perfConfig{
	Cells:  4,
	UEs:    256,
	NofPRB: 106,
}

func BenchmarkSlotLarge(b *testing.B) {
	benchmarkSlots(b, largeConfig)
}

func BenchmarkSlotLargeCA(b *testing.B) {
	cfg := largeConfig
	cfg.CA = true
	benchmarkSlots(b, cfg)
}
