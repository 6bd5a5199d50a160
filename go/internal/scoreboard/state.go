package scoreboard

import (
	"encoding/json"
	"time"
)

// Side identifies one of the two competitors on a station.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Valid reports whether s names a real side.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// StationState is the authoritative scoreboard state for one station (mat).
type StationState struct {
	Segment              Segment `json:"segment"`
	TimeRemainingSeconds int     `json:"timeRemainingSeconds"`
	Running              bool    `json:"running"`
	ScoreA               int     `json:"scoreA"`
	ScoreB               int     `json:"scoreB"`
	NameA                string  `json:"nameA"`
	NameB                string  `json:"nameB"`
	PeriodLengthSeconds  int     `json:"periodLengthSeconds"`
	AutoAdvance          bool    `json:"autoAdvance"`
	Winner               string  `json:"winner,omitempty"`
}

func defaultState(periodLengthSeconds int) StationState {
	return StationState{
		Segment:              FirstSegment,
		TimeRemainingSeconds: periodLengthSeconds,
		PeriodLengthSeconds:  periodLengthSeconds,
	}
}

// Snapshot is the full state of every station at a point in time, keyed by
// station id. It is what observers receive on every broadcast.
type Snapshot map[int]StationState

// MatchEnded is the intent a control client sends when a match finishes.
// Scores, segment and timestamp are filled in from the live station state.
type MatchEnded struct {
	Winner   string                     `json:"winner,omitempty"`
	Metadata map[string]json.RawMessage `json:"metadata,omitempty"`
}

// MatchResult is the immutable record appended to the durable result log.
type MatchResult struct {
	StationID int                        `json:"mat"`
	ScoreA    int                        `json:"scoreA"`
	ScoreB    int                        `json:"scoreB"`
	Winner    string                     `json:"winner,omitempty"`
	Segment   Segment                    `json:"segment"`
	Timestamp time.Time                  `json:"timestamp"`
	Metadata  map[string]json.RawMessage `json:"metadata,omitempty"`
}
