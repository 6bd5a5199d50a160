package scoreboard

// Segment is the phase of a match: three regulation periods, overtime,
// two tiebreaks and the ultimate tiebreak. Progression is ordered and
// monotonic unless a station is explicitly reset.
type Segment string

const (
	SegmentREG1 Segment = "REG1"
	SegmentREG2 Segment = "REG2"
	SegmentREG3 Segment = "REG3"
	SegmentOT   Segment = "OT"
	SegmentTB1  Segment = "TB1"
	SegmentTB2  Segment = "TB2"
	SegmentUT   Segment = "UT"
)

// FirstSegment is the segment every station starts in.
const FirstSegment = SegmentREG1

var segmentOrder = []Segment{
	SegmentREG1,
	SegmentREG2,
	SegmentREG3,
	SegmentOT,
	SegmentTB1,
	SegmentTB2,
	SegmentUT,
}

func (s Segment) index() int {
	for i, seg := range segmentOrder {
		if seg == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a recognized segment.
func (s Segment) Valid() bool {
	return s.index() >= 0
}

// Next returns the segment after s. The second return is false when s is
// the last segment (or unrecognized) and there is nowhere to advance to.
func (s Segment) Next() (Segment, bool) {
	i := s.index()
	if i < 0 || i == len(segmentOrder)-1 {
		return s, false
	}
	return segmentOrder[i+1], true
}

// Offset returns the segment delta steps away from s, clamped to the
// valid range. Moving below the first segment yields the first segment.
func (s Segment) Offset(delta int) Segment {
	i := s.index()
	if i < 0 {
		return FirstSegment
	}
	i += delta
	if i < 0 {
		i = 0
	}
	if i > len(segmentOrder)-1 {
		i = len(segmentOrder) - 1
	}
	return segmentOrder[i]
}
