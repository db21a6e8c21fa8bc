package harq

import (
	"context"
	"testing"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

func sl(n uint32) slotpoint.SlotPoint { return slotpoint.New(0, n) }

func rbgGrant(nofRBG int, rbgs ...int) rbgrid.Grant {
	b := rbgrid.NewBitmap(nofRBG)
	for _, r := range rbgs {
		b.Set(r)
	}
	return rbgrid.GrantFromRBGs(b)
}

func TestNewTxLifecycle(t *testing.T) {
	e := NewEntity(0x4601, 0, 52, 16, softbuffer.NewPool(), nil)
	h := e.FindEmptyDLHarq()
	if h == nil || h.PID() != 0 {
		t.Fatalf("expected pid 0 to be empty")
	}
	ndi := h.NDI()
	g := rbgGrant(13, 0, 1, 2, 3)
	if !h.NewTx(sl(10), sl(14), g, 20, 4) {
		t.Fatalf("NewTx on empty process failed")
	}
	h.SetTBS(1000)
	if h.NDI() == ndi || h.Empty() || h.NofRetx() != 0 {
		t.Fatalf("unexpected state after NewTx: ndi=%v empty=%v nrtx=%d", h.NDI(), h.Empty(), h.NofRetx())
	}
	if h.NewTx(sl(11), sl(15), g, 20, 4) {
		t.Fatalf("NewTx on active process must fail")
	}
	if got := e.DLAckInfo(context.Background(), 0, 0, true); got != 125 {
		t.Fatalf("ACK returned %d, want TBS 125 bytes", got)
	}
	if !h.Empty() {
		t.Fatalf("process not empty after ACK")
	}
	if got := e.DLAckInfo(context.Background(), 0, 0, true); got != -1 {
		t.Fatalf("ACK on empty process returned %d, want -1", got)
	}
}

func TestNewRetxShapeCheck(t *testing.T) {
	e := NewEntity(0x4601, 0, 52, 16, softbuffer.NewPool(), nil)
	h := e.DLHarq(0)
	if h.NewRetx(sl(10), sl(14), rbgGrant(13, 0)) {
		t.Fatalf("NewRetx on empty process must fail")
	}
	h.NewTx(sl(10), sl(14), rbgGrant(13, 0, 1, 2, 3), 20, 4)
	e.DLAckInfo(context.Background(), 0, 0, false)

	if h.NewRetx(sl(18), sl(22), rbgGrant(13, 0, 1, 2)) {
		t.Fatalf("NewRetx with 3 RBGs instead of 4 must fail")
	}
	if h.NewRetx(sl(18), sl(22), rbgrid.GrantFromInterval(rbgrid.NewPRBInterval(0, 16))) {
		t.Fatalf("NewRetx with a different allocation type must fail")
	}
	if !h.NewRetx(sl(18), sl(22), rbgGrant(13, 5, 6, 7, 8)) {
		t.Fatalf("NewRetx with the same RBG count failed")
	}
	if h.NofRetx() != 1 || !h.SlotTx().Equal(sl(18)) {
		t.Fatalf("unexpected state after retx: nrtx=%d slot=%v", h.NofRetx(), h.SlotTx())
	}
}

func TestPendingRetxAndMaxRetx(t *testing.T) {
	ctx := context.Background()
	e := NewEntity(0x4601, 0, 52, 16, softbuffer.NewPool(), nil)
	g := rbgrid.GrantFromInterval(rbgrid.NewPRBInterval(0, 10))
	h := e.ULHarq(3)
	h.NewTx(sl(10), sl(10), g, 10, 1)
	h.SetTBS(256)

	e.NewSlot(ctx, sl(9))
	if e.FindPendingULRetx() != nil {
		t.Fatalf("retx pending before the ACK slot")
	}
	e.ULCRCInfo(ctx, 3, false)
	e.NewSlot(ctx, sl(10))
	if got := e.FindPendingULRetx(); got == nil || got.PID() != 3 {
		t.Fatalf("expected pid 3 pending retx")
	}
	if !h.NewRetx(sl(14), sl(14), g) {
		t.Fatalf("first retx failed")
	}
	e.ULCRCInfo(ctx, 3, false)

	d := e.NewSlot(ctx, sl(14))
	if d.UL != 1 || !h.Empty() {
		t.Fatalf("expected the process to be discarded after max retx, discards=%+v", d)
	}
	if h.Softbuffer().TBS() != 256 {
		t.Fatalf("softbuffer TBS = %d, want 256", h.Softbuffer().TBS())
	}
}

func TestEntityRelease(t *testing.T) {
	pool := softbuffer.NewPool()
	e := NewEntity(0x4601, 0, 52, 8, pool, nil)
	if pool.InUse() != 16 {
		t.Fatalf("InUse() = %d, want 16", pool.InUse())
	}
	e.Release()
	if pool.InUse() != 0 {
		t.Fatalf("InUse() = %d after release, want 0", pool.InUse())
	}
}
