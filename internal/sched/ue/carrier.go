package ue

import (
	"context"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/harq"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// Metrics are the per-carrier counters reported since the last snapshot.
type Metrics struct {
	RNTI     uint16
	CC       int
	DLBytes  int
	DLPkts   int
	DLErrors int
	ULBytes  int
	ULPkts   int
	ULErrors int
	DLCQI    int
	ULSNR    float64
}

// Carrier is the state of a UE on one serving cell.
type Carrier struct {
	rnti    uint16
	cc      int
	params  *CarrierParams
	harq    *harq.Entity
	dlCQI   int
	ulSNR   float64
	metrics Metrics
}

func newCarrier(rnti uint16, p *CarrierParams, pool *softbuffer.Pool, log logging.Logger) *Carrier {
	return &Carrier{
		rnti:   rnti,
		cc:     p.CC(),
		params: p,
		harq:   harq.NewEntity(rnti, p.CC(), p.BWP().NofPRB, params.MaxHARQ, pool, log),
		dlCQI:  1,
	}
}

func (c *Carrier) CC() int                { return c.cc }
func (c *Carrier) Params() *CarrierParams { return c.params }
func (c *Carrier) HARQ() *harq.Entity     { return c.harq }
func (c *Carrier) DLCQI() int             { return c.dlCQI }

func (c *Carrier) newSlot(ctx context.Context, slotRx slotpoint.SlotPoint) harq.Discards {
	return c.harq.NewSlot(ctx, slotRx)
}

// DLAckInfo applies HARQ-ACK feedback and updates the counters.
func (c *Carrier) DLAckInfo(ctx context.Context, pid, tb int, ack bool) int {
	n := c.harq.DLAckInfo(ctx, pid, tb, ack)
	if n < 0 {
		return n
	}
	c.metrics.DLPkts++
	if ack {
		c.metrics.DLBytes += n
	} else {
		c.metrics.DLErrors++
	}
	return n
}

// ULCRCInfo applies a PUSCH CRC and updates the counters.
func (c *Carrier) ULCRCInfo(ctx context.Context, pid int, ok bool) int {
	n := c.harq.ULCRCInfo(ctx, pid, ok)
	if n < 0 {
		return n
	}
	c.metrics.ULPkts++
	if ok {
		c.metrics.ULBytes += n
	} else {
		c.metrics.ULErrors++
	}
	return n
}

func (c *Carrier) SetDLCQI(cqi int)     { c.dlCQI = cqi }
func (c *Carrier) SetULSNR(snr float64) { c.ulSNR = snr }

// TakeMetrics returns the counters and starts a new period.
func (c *Carrier) TakeMetrics() Metrics {
	m := c.metrics
	m.RNTI, m.CC, m.DLCQI, m.ULSNR = c.rnti, c.cc, c.dlCQI, c.ulSNR
	c.metrics = Metrics{}
	return m
}

func (c *Carrier) release() { c.harq.Release() }
