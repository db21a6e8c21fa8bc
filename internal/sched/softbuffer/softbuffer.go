// Package softbuffer owns the HARQ soft buffers of a cell. Buffers are handed
// out by an explicit Pool so tests and cells never share global state.
package softbuffer

import "sync"

// Tx holds the encoded bits of a DL transport block for retransmission.
type Tx struct {
	nofPRB int
	data   []byte
}

// Reset clears the buffer for a new transport block.
func (b *Tx) Reset() { clear(b.data) }

func (b *Tx) Bytes() []byte { return b.data }
func (b *Tx) NofPRB() int   { return b.nofPRB }

// Rx holds the soft bits of an UL transport block across retransmissions.
type Rx struct {
	nofPRB int
	tbs    int
	data   []byte
}

// Reset prepares the buffer for a transport block of tbs bits.
func (b *Rx) Reset(tbs int) {
	b.tbs = tbs
	clear(b.data)
}

func (b *Rx) TBS() int      { return b.tbs }
func (b *Rx) Bytes() []byte { return b.data }
func (b *Rx) NofPRB() int   { return b.nofPRB }

// Pool recycles buffers sized for a carrier bandwidth.
type Pool struct {
	mu     sync.Mutex
	freeTx map[int][]*Tx
	freeRx map[int][]*Rx
	inUse  int
}

func NewPool() *Pool {
	return &Pool{freeTx: make(map[int][]*Tx), freeRx: make(map[int][]*Rx)}
}

// bufferBytes sizes a buffer for rate-1/3 coded 64QAM over nofPRB PRBs.
func bufferBytes(nofPRB int) int { return nofPRB * 156 * 6 * 3 / 8 }

// GetTx returns a cleared DL buffer for nofPRB PRBs.
func (p *Pool) GetTx(nofPRB int) *Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse++
	if l := p.freeTx[nofPRB]; len(l) > 0 {
		b := l[len(l)-1]
		p.freeTx[nofPRB] = l[:len(l)-1]
		b.Reset()
		return b
	}
	return &Tx{nofPRB: nofPRB, data: make([]byte, bufferBytes(nofPRB))}
}

// GetRx returns a cleared UL buffer for nofPRB PRBs.
func (p *Pool) GetRx(nofPRB int) *Rx {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse++
	if l := p.freeRx[nofPRB]; len(l) > 0 {
		b := l[len(l)-1]
		p.freeRx[nofPRB] = l[:len(l)-1]
		b.Reset(0)
		return b
	}
	return &Rx{nofPRB: nofPRB, data: make([]byte, bufferBytes(nofPRB))}
}

// ReleaseTx returns b to the pool. Nil is ignored.
func (p *Pool) ReleaseTx(b *Tx) {
	if b == nil {
		return
	}
	p.mu.Lock()
	p.inUse--
	p.freeTx[b.nofPRB] = append(p.freeTx[b.nofPRB], b)
	p.mu.Unlock()
}

// ReleaseRx returns b to the pool. Nil is ignored.
func (p *Pool) ReleaseRx(b *Rx) {
	if b == nil {
		return
	}
	p.mu.Lock()
	p.inUse--
	p.freeRx[b.nofPRB] = append(p.freeRx[b.nofPRB], b)
	p.mu.Unlock()
}

// InUse returns the number of buffers handed out and not yet released.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
