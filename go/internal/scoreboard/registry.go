package scoreboard

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Broadcaster delivers state snapshots and buzzer signals to every
// connected observer. Implementations must never block the caller.
type Broadcaster interface {
	BroadcastState(Snapshot)
	BroadcastBuzzer(stationID int)
}

// ResultSink receives finalized match results for durable persistence.
// Hand-off is fire-and-forget; the sink must not block.
type ResultSink interface {
	AppendMatchResult(MatchResult)
}

// Registry owns the mutable state of every station. Stations are a fixed
// set created at startup and never destroyed; all mutations are atomic per
// station and trigger one broadcast before returning.
type Registry struct {
	clock    clockwork.Clock
	stations map[int]*station
	ids      []int

	bc   Broadcaster
	sink ResultSink
}

type station struct {
	mu    sync.Mutex
	state StationState
}

// NewRegistry creates stations 1..count with defaults.
func NewRegistry(count, periodLengthSeconds int, clock clockwork.Clock) *Registry {
	r := &Registry{
		clock:    clock,
		stations: make(map[int]*station, count),
	}
	for id := 1; id <= count; id++ {
		r.stations[id] = &station{state: defaultState(periodLengthSeconds)}
		r.ids = append(r.ids, id)
	}
	return r
}

// SetBroadcaster wires the observer fan-out. Until set, mutations apply
// silently.
func (r *Registry) SetBroadcaster(bc Broadcaster) {
	r.bc = bc
}

// SetResultSink wires the persistence hand-off for finished matches.
func (r *Registry) SetResultSink(sink ResultSink) {
	r.sink = sink
}

// Snapshot returns a copy of every station's state keyed by id.
func (r *Registry) Snapshot() Snapshot {
	snap := make(Snapshot, len(r.ids))
	for _, id := range r.ids {
		s := r.stations[id]
		s.mu.Lock()
		snap[id] = s.state
		s.mu.Unlock()
	}
	return snap
}

// ApplyUpdate merges a partial update into one station and broadcasts the
// resulting snapshot. An unknown station id is a silent no-op.
func (r *Registry) ApplyUpdate(stationID int, update StationUpdate) {
	s, ok := r.stations[stationID]
	if !ok {
		log.Warn().Int("station_id", stationID).Msg("update for unknown station ignored")
		return
	}
	s.mu.Lock()
	update.apply(&s.state)
	s.mu.Unlock()

	r.broadcast()
}

// AddPoints adds points (possibly negative) to one side's score, clamped at
// zero. An invalid station or side is a silent no-op with no broadcast.
func (r *Registry) AddPoints(stationID int, side Side, points int) {
	s, ok := r.stations[stationID]
	if !ok || !side.Valid() {
		log.Warn().
			Int("station_id", stationID).
			Str("side", string(side)).
			Msg("add points for unknown station or side ignored")
		return
	}
	s.mu.Lock()
	switch side {
	case SideA:
		s.state.ScoreA = clampZero(s.state.ScoreA + points)
	case SideB:
		s.state.ScoreB = clampZero(s.state.ScoreB + points)
	}
	s.mu.Unlock()

	r.broadcast()
}

// SubtractPoint removes a single point from one side, clamped at zero.
func (r *Registry) SubtractPoint(stationID int, side Side) {
	r.AddPoints(stationID, side, -1)
}

// ResetStation restores one station to defaults. Idempotent.
func (r *Registry) ResetStation(stationID int) {
	s, ok := r.stations[stationID]
	if !ok {
		log.Warn().Int("station_id", stationID).Msg("reset for unknown station ignored")
		return
	}
	s.mu.Lock()
	s.state = defaultState(s.state.PeriodLengthSeconds)
	s.mu.Unlock()

	r.broadcast()
}

// RecordMatchEnded captures the finished match from the live station state,
// broadcasts immediately, and hands the result to the persistence sink.
// Durable-write completion is not awaited.
func (r *Registry) RecordMatchEnded(stationID int, ended MatchEnded) {
	s, ok := r.stations[stationID]
	if !ok {
		log.Warn().Int("station_id", stationID).Msg("match ended for unknown station ignored")
		return
	}

	s.mu.Lock()
	s.state.Running = false
	s.state.Winner = ended.Winner
	result := MatchResult{
		StationID: stationID,
		ScoreA:    s.state.ScoreA,
		ScoreB:    s.state.ScoreB,
		Winner:    ended.Winner,
		Segment:   s.state.Segment,
		Timestamp: r.clock.Now().UTC(),
		Metadata:  ended.Metadata,
	}
	s.mu.Unlock()

	log.Info().
		Int("station_id", stationID).
		Str("winner", result.Winner).
		Str("segment", string(result.Segment)).
		Msg("match ended")

	r.broadcast()

	if r.sink != nil {
		r.sink.AppendMatchResult(result)
	}
}

// Tick advances every running station by one second and issues a single
// consolidated broadcast, regardless of how many stations changed. A station
// reaching zero stops; with auto-advance it moves to the next segment with a
// fresh period, otherwise it fires a buzzer.
func (r *Registry) Tick() {
	var buzzers []int
	for _, id := range r.ids {
		s := r.stations[id]
		s.mu.Lock()
		st := &s.state
		if st.Running && st.TimeRemainingSeconds > 0 {
			st.TimeRemainingSeconds--
			if st.TimeRemainingSeconds == 0 {
				st.Running = false
				if next, ok := st.Segment.Next(); st.AutoAdvance && ok {
					st.Segment = next
					st.TimeRemainingSeconds = st.PeriodLengthSeconds
				} else {
					buzzers = append(buzzers, id)
				}
			}
		}
		s.mu.Unlock()
	}

	r.broadcast()

	if r.bc != nil {
		for _, id := range buzzers {
			r.bc.BroadcastBuzzer(id)
		}
	}
}

func (r *Registry) broadcast() {
	if r.bc != nil {
		r.bc.BroadcastState(r.Snapshot())
	}
}
