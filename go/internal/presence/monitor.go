package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Role distinguishes clients that drive a station from clients that only
// display it.
type Role string

const (
	RoleControl Role = "control"
	RoleDisplay Role = "display"
)

// DeviceRecord tracks liveness of one connected control or display client.
// Records are never removed while the process runs; stale ones are flagged
// offline and revive on the next heartbeat.
type DeviceRecord struct {
	ConnectionID    string    `json:"connectionId"`
	Role            Role      `json:"role"`
	StationID       int       `json:"mat"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
	Online          bool      `json:"online"`
}

// Broadcaster delivers device-status updates to observers. Presence travels
// on its own topic so it never delays score or timer broadcasts.
type Broadcaster interface {
	BroadcastPresence([]DeviceRecord)
}

// Config holds the sweep cadence and the staleness threshold.
type Config struct {
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
}

// DefaultConfig returns the standard presence thresholds.
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout: 15 * time.Second,
		SweepInterval:    5 * time.Second,
	}
}

// Monitor tracks every device that has registered or heartbeated and
// periodically demotes stale ones.
type Monitor struct {
	clock  clockwork.Clock
	config Config
	bc     Broadcaster

	mu      sync.Mutex
	devices map[string]*DeviceRecord

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor with an injectable clock for deterministic
// sweep tests.
func NewMonitor(config Config, clock clockwork.Clock) *Monitor {
	return &Monitor{
		clock:   clock,
		config:  config,
		devices: make(map[string]*DeviceRecord),
	}
}

// SetBroadcaster wires the presence fan-out. Until set, transitions apply
// silently.
func (m *Monitor) SetBroadcaster(bc Broadcaster) {
	m.bc = bc
}

// Register creates or overwrites the record for a connection and marks it
// online.
func (m *Monitor) Register(connectionID string, role Role, stationID int) {
	m.mu.Lock()
	m.devices[connectionID] = &DeviceRecord{
		ConnectionID:    connectionID,
		Role:            role,
		StationID:       stationID,
		LastHeartbeatAt: m.clock.Now(),
		Online:          true,
	}
	m.mu.Unlock()

	log.Info().
		Str("connection_id", connectionID).
		Str("role", string(role)).
		Int("station_id", stationID).
		Msg("device registered")

	m.broadcast()
}

// Heartbeat refreshes a device's liveness, upserting the record for clients
// that heartbeat without an explicit registration. A broadcast fires only
// when the device actually transitions back online. The client timestamp is
// kept out of the liveness decision; the server clock is authoritative.
func (m *Monitor) Heartbeat(connectionID string, role Role, stationID int, clientTimestamp time.Time) {
	m.mu.Lock()
	d, ok := m.devices[connectionID]
	if !ok {
		d = &DeviceRecord{ConnectionID: connectionID}
		m.devices[connectionID] = d
	}
	revived := !d.Online
	d.Role = role
	d.StationID = stationID
	d.LastHeartbeatAt = m.clock.Now()
	d.Online = true
	m.mu.Unlock()

	if skew := m.clock.Now().Sub(clientTimestamp); skew > time.Minute || skew < -time.Minute {
		log.Debug().
			Str("connection_id", connectionID).
			Dur("clock_skew", skew).
			Msg("device clock skew")
	}

	if !ok || revived {
		m.broadcast()
	}
}

// Disconnect immediately marks a device offline and broadcasts. Unknown
// connections are ignored.
func (m *Monitor) Disconnect(connectionID string) {
	m.mu.Lock()
	d, ok := m.devices[connectionID]
	changed := ok && d.Online
	if changed {
		d.Online = false
	}
	m.mu.Unlock()

	if changed {
		log.Info().Str("connection_id", connectionID).Msg("device disconnected")
		m.broadcast()
	}
}

// Snapshot returns a copy of every device record, ordered by connection id.
func (m *Monitor) Snapshot() []DeviceRecord {
	m.mu.Lock()
	records := make([]DeviceRecord, 0, len(m.devices))
	for _, d := range m.devices {
		records = append(records, *d)
	}
	m.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].ConnectionID < records[j].ConnectionID
	})
	return records
}

// Sweep demotes every device whose last heartbeat is older than the timeout.
// A presence broadcast fires only if at least one device changed state, so a
// stale device produces exactly one offline transition.
func (m *Monitor) Sweep() {
	cutoff := m.clock.Now().Add(-m.config.HeartbeatTimeout)

	m.mu.Lock()
	changed := 0
	for _, d := range m.devices {
		if d.Online && d.LastHeartbeatAt.Before(cutoff) {
			d.Online = false
			changed++
			log.Info().
				Str("connection_id", d.ConnectionID).
				Time("last_heartbeat", d.LastHeartbeatAt).
				Msg("device timed out")
		}
	}
	m.mu.Unlock()

	if changed > 0 {
		m.broadcast()
	}
}

// Start launches the periodic sweep loop. No-op if already running.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})

	m.wg.Add(1)
	go m.run(ctx, m.stopChan)

	log.Info().
		Dur("sweep_interval", m.config.SweepInterval).
		Dur("heartbeat_timeout", m.config.HeartbeatTimeout).
		Msg("presence monitor started")
}

// Stop halts the sweep loop. Idempotent.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.runMu.Unlock()

	m.wg.Wait()
	log.Info().Msg("presence monitor stopped")
}

func (m *Monitor) run(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			m.Sweep()
		}
	}
}

func (m *Monitor) broadcast() {
	if m.bc != nil {
		m.bc.BroadcastPresence(m.Snapshot())
	}
}
