package ue

import "sync"

const (
	// MaxLCID bounds the logical channel identities tracked per UE.
	MaxLCID = 32
	// MaxLCG is the number of UL logical channel groups.
	MaxLCG = 8
	// srBytes is the UL demand assumed after an SR with no BSR yet.
	srBytes = 512
	ceBytes = 2
)

type lcBuffer struct {
	newTx, retx int
}

// bufferState tracks the DL RLC buffers, UL BSRs, SR and pending MAC CEs.
// Reads happen from cell workers of every carrier of a CA UE, so it is
// guarded.
type bufferState struct {
	mu        sync.Mutex
	dl        [MaxLCID]lcBuffer
	ulBSR     [MaxLCG]int
	pendingSR bool
	dlCEs     []uint32
}

func (b *bufferState) setDL(lcid uint32, newTx, retx int) {
	if lcid >= MaxLCID {
		return
	}
	b.mu.Lock()
	b.dl[lcid] = lcBuffer{newTx: newTx, retx: retx}
	b.mu.Unlock()
}

func (b *bufferState) setBSR(lcg uint32, bytes int) {
	if lcg >= MaxLCG {
		return
	}
	b.mu.Lock()
	b.ulBSR[lcg] = bytes
	b.pendingSR = false
	b.mu.Unlock()
}

func (b *bufferState) setSR() {
	b.mu.Lock()
	b.pendingSR = true
	b.mu.Unlock()
}

func (b *bufferState) addCE(lcid uint32) {
	b.mu.Lock()
	b.dlCEs = append(b.dlCEs, lcid)
	b.mu.Unlock()
}

func (b *bufferState) dlBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.dlCEs) * ceBytes
	for _, lc := range b.dl {
		n += lc.newTx + lc.retx
	}
	return n
}

func (b *bufferState) ulBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, v := range b.ulBSR {
		n += v
	}
	if n == 0 && b.pendingSR {
		n = srBytes
	}
	return n
}

// buildSubPDUs picks the MAC CEs and logical channels a transport block of
// tbsBytes carries. Scheduled CEs are removed from the queue; RLC buffers
// are left to the next buffer state report.
func (b *bufferState) buildSubPDUs(tbsBytes int) []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []uint32
	rem := tbsBytes
	n := 0
	for n < len(b.dlCEs) && rem >= ceBytes {
		out = append(out, b.dlCEs[n])
		rem -= ceBytes
		n++
	}
	b.dlCEs = b.dlCEs[n:]
	for lcid, lc := range b.dl {
		if rem <= 0 {
			break
		}
		if pending := lc.newTx + lc.retx; pending > 0 {
			out = append(out, uint32(lcid))
			rem -= pending
		}
	}
	return out
}
