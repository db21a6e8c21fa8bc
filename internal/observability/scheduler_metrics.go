package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedCollector exposes MAC scheduler metrics. All methods are safe on a
// nil receiver so components can run without metrics.
type SchedCollector struct {
	gatherer prometheus.Gatherer

	SlotDuration   *prometheus.HistogramVec
	Grants         *prometheus.CounterVec
	AllocFailures  *prometheus.CounterVec
	RARDropped     *prometheus.CounterVec
	HARQDiscarded  *prometheus.CounterVec
	UEs            prometheus.Gauge
	PRBUtilization *prometheus.GaugeVec
}

// NewSchedCollector registers scheduler metrics against the provided registerer.
func NewSchedCollector(reg prometheus.Registerer) (*SchedCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	slotDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sched_slot_duration_seconds",
		Help:    "Time spent scheduling one slot of one cell.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005},
	}, []string{"cc"}), "sched_slot_duration_seconds")
	if err != nil {
		return nil, err
	}
	grants, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_grants_total",
		Help: "Grants committed by the slot allocator, labeled by cell and grant kind.",
	}, []string{"cc", "kind"}), "sched_grants_total")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_alloc_failures_total",
		Help: "Rejected allocation attempts, labeled by cell, grant kind and cause.",
	}, []string{"cc", "kind", "cause"}), "sched_alloc_failures_total")
	if err != nil {
		return nil, err
	}
	rarDropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_rar_dropped_total",
		Help: "Pending RARs dropped because their response window expired.",
	}, []string{"cc"}), "sched_rar_dropped_total")
	if err != nil {
		return nil, err
	}
	discarded, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_harq_discarded_total",
		Help: "HARQ processes emptied after exhausting their retransmissions.",
	}, []string{"cc", "dir"}), "sched_harq_discarded_total")
	if err != nil {
		return nil, err
	}
	ues, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sched_ues",
		Help: "Number of UEs known to the scheduler.",
	}), "sched_ues")
	if err != nil {
		return nil, err
	}
	util, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sched_prb_utilization_ratio",
		Help: "Fraction of BWP PRBs allocated in the last scheduled slot.",
	}, []string{"cc", "dir"}), "sched_prb_utilization_ratio")
	if err != nil {
		return nil, err
	}

	return &SchedCollector{
		gatherer:       gatherer,
		SlotDuration:   slotDuration,
		Grants:         grants,
		AllocFailures:  failures,
		RARDropped:     rarDropped,
		HARQDiscarded:  discarded,
		UEs:            ues,
		PRBUtilization: util,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SchedCollector) Handler() http.Handler {
	if c == nil {
		return handlerFor(nil)
	}
	return handlerFor(c.gatherer)
}

// ObserveSlot records the scheduling latency of one cell slot.
func (c *SchedCollector) ObserveSlot(cc int, d time.Duration) {
	if c == nil {
		return
	}
	c.SlotDuration.WithLabelValues(strconv.Itoa(cc)).Observe(d.Seconds())
}

// IncGrant counts a committed grant.
func (c *SchedCollector) IncGrant(cc int, kind string) {
	if c == nil {
		return
	}
	c.Grants.WithLabelValues(strconv.Itoa(cc), kind).Inc()
}

// IncAllocFailure counts a rejected allocation.
func (c *SchedCollector) IncAllocFailure(cc int, kind, cause string) {
	if c == nil {
		return
	}
	c.AllocFailures.WithLabelValues(strconv.Itoa(cc), kind, cause).Inc()
}

// IncRARDropped counts an expired RAR window.
func (c *SchedCollector) IncRARDropped(cc int) {
	if c == nil {
		return
	}
	c.RARDropped.WithLabelValues(strconv.Itoa(cc)).Inc()
}

// AddHARQDiscards counts processes dropped at max retransmissions.
func (c *SchedCollector) AddHARQDiscards(cc, dl, ul int) {
	if c == nil {
		return
	}
	if dl > 0 {
		c.HARQDiscarded.WithLabelValues(strconv.Itoa(cc), "dl").Add(float64(dl))
	}
	if ul > 0 {
		c.HARQDiscarded.WithLabelValues(strconv.Itoa(cc), "ul").Add(float64(ul))
	}
}

// SetUEs updates the UE gauge.
func (c *SchedCollector) SetUEs(n int) {
	if c == nil {
		return
	}
	c.UEs.Set(float64(n))
}

// SetPRBUtilization records the allocated PRB fraction, clamped to [0, 1].
func (c *SchedCollector) SetPRBUtilization(cc int, dir string, ratio float64) {
	if c == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.PRBUtilization.WithLabelValues(strconv.Itoa(cc), dir).Set(ratio)
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
