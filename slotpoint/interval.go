package slotpoint

import "fmt"

// Interval is a half-open range of slots [Start, Stop).
type Interval struct {
	Start SlotPoint
	Stop  SlotPoint
}

// NewInterval returns [start, start+length).
func NewInterval(start SlotPoint, length int) Interval {
	return Interval{Start: start, Stop: start.Add(length)}
}

func (i Interval) Length() int { return i.Stop.Sub(i.Start) }
func (i Interval) Empty() bool { return i.Length() <= 0 }

// Contains reports whether s lies in [Start, Stop).
func (i Interval) Contains(s SlotPoint) bool {
	return i.Start.LessEq(s) && s.Less(i.Stop)
}

func (i Interval) String() string { return fmt.Sprintf("[%s, %s)", i.Start, i.Stop) }
