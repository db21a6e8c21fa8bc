package bwp

import "errors"

// Allocation outcomes. A nil error is a committed grant; every sentinel is
// recoverable and leaves the slot grid untouched.
var (
	ErrSchCollision       = errors.New("shared channel collision")
	ErrNoCCHSpace         = errors.New("no PDCCH space")
	ErrNoSchSpace         = errors.New("no shared channel space")
	ErrNoGrantSpace       = errors.New("no grant list space")
	ErrNoRNTIOpportunity  = errors.New("no RNTI opportunity")
	ErrInvalidCoderate    = errors.New("invalid code rate")
	ErrInvalidGrantParams = errors.New("invalid grant parameters")
	ErrOtherCause         = errors.New("allocation failed")

	// ErrRARCapacity is returned by DLRACHInfo when the RAR of the same
	// RA-RNTI already carries the maximum number of Msg3 grants.
	ErrRARCapacity = errors.New("RAR grant capacity exceeded")
)

// ResultLabel maps an allocation result to its metric label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSchCollision):
		return "sch_collision"
	case errors.Is(err, ErrNoCCHSpace):
		return "no_cch_space"
	case errors.Is(err, ErrNoSchSpace):
		return "no_sch_space"
	case errors.Is(err, ErrNoGrantSpace):
		return "no_grant_space"
	case errors.Is(err, ErrNoRNTIOpportunity):
		return "no_rnti_opportunity"
	case errors.Is(err, ErrInvalidCoderate):
		return "invalid_coderate"
	case errors.Is(err, ErrInvalidGrantParams):
		return "invalid_grant_params"
	default:
		return "other_cause"
	}
}

// Recorder receives allocation events. observability.SchedCollector
// implements it.
type Recorder interface {
	IncGrant(cc int, kind string)
	IncAllocFailure(cc int, kind, cause string)
	IncRARDropped(cc int)
}

type noopRecorder struct{}

func (noopRecorder) IncGrant(int, string)                {}
func (noopRecorder) IncAllocFailure(int, string, string) {}
func (noopRecorder) IncRARDropped(int)                   {}

// Grant kinds used as metric labels.
const (
	KindPDSCH = "pdsch"
	KindPUSCH = "pusch"
	KindRAR   = "rar"
	KindMsg3  = "msg3"
	KindSI    = "si"
)
