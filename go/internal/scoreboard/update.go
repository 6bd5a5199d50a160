package scoreboard

// StationUpdate is the whitelist of fields a control client may patch on a
// station. Nil fields are left untouched; unknown JSON fields are dropped by
// the decoder rather than merged.
type StationUpdate struct {
	Running              *bool    `json:"running,omitempty"`
	Segment              *Segment `json:"segment,omitempty"`
	SegmentDelta         *int     `json:"segmentDelta,omitempty"`
	TimeRemainingSeconds *int     `json:"timeRemainingSeconds,omitempty"`
	ScoreA               *int     `json:"scoreA,omitempty"`
	ScoreB               *int     `json:"scoreB,omitempty"`
	NameA                *string  `json:"nameA,omitempty"`
	NameB                *string  `json:"nameB,omitempty"`
	PeriodLengthSeconds  *int     `json:"periodLengthSeconds,omitempty"`
	AutoAdvance          *bool    `json:"autoAdvance,omitempty"`
	Winner               *string  `json:"winner,omitempty"`
}

// apply merges the update into st. SegmentDelta is consumed before the
// remaining fields so an explicit Segment in the same update wins. Scores
// and time clamp at zero, and a station whose time is zero cannot be left
// running.
func (u StationUpdate) apply(st *StationState) {
	if u.SegmentDelta != nil {
		st.Segment = st.Segment.Offset(*u.SegmentDelta)
	}
	if u.Segment != nil && u.Segment.Valid() {
		st.Segment = *u.Segment
	}
	if u.TimeRemainingSeconds != nil {
		st.TimeRemainingSeconds = clampZero(*u.TimeRemainingSeconds)
	}
	if u.Running != nil {
		st.Running = *u.Running
	}
	if u.ScoreA != nil {
		st.ScoreA = clampZero(*u.ScoreA)
	}
	if u.ScoreB != nil {
		st.ScoreB = clampZero(*u.ScoreB)
	}
	if u.NameA != nil {
		st.NameA = *u.NameA
	}
	if u.NameB != nil {
		st.NameB = *u.NameB
	}
	if u.PeriodLengthSeconds != nil && *u.PeriodLengthSeconds > 0 {
		st.PeriodLengthSeconds = *u.PeriodLengthSeconds
	}
	if u.AutoAdvance != nil {
		st.AutoAdvance = *u.AutoAdvance
	}
	if u.Winner != nil {
		st.Winner = *u.Winner
	}
	if st.TimeRemainingSeconds > st.PeriodLengthSeconds {
		st.TimeRemainingSeconds = st.PeriodLengthSeconds
	}
	if st.TimeRemainingSeconds == 0 {
		st.Running = false
	}
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
