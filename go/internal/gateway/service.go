package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/matside/scoreboard-server/go/internal/presence"
	"github.com/matside/scoreboard-server/go/internal/scoreboard"
)

// Service is the control surface: it upgrades observers, dispatches their
// intents to the station registry and the presence monitor, and implements
// the broadcast interfaces both of them publish through.
type Service struct {
	cm       *ConnectionManager
	registry *scoreboard.Registry
	monitor  *presence.Monitor
}

// NewService wires the connection manager to the registry and monitor.
func NewService(config ConnectionConfig, registry *scoreboard.Registry, monitor *presence.Monitor) *Service {
	s := &Service{
		registry: registry,
		monitor:  monitor,
	}
	s.cm = NewConnectionManager(config, Hooks{
		OnMessage:     s.handleMessage,
		OnDisconnect:  monitor.Disconnect,
		InitialFrames: s.initialFrames,
	})
	return s
}

// Manager exposes the connection manager for lifecycle wiring.
func (s *Service) Manager() *ConnectionManager {
	return s.cm
}

// HandleWebSocket upgrades a control/display client connection.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if _, err := s.cm.UpgradeConnection(w, r); err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

// HandleStats reports live connection counts.
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"connections": s.cm.ConnectionCount(),
		"devices":     len(s.monitor.Snapshot()),
	})
}

// RegisterRoutes registers the gateway endpoints on the mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/ws/stats", s.HandleStats)
}

// BroadcastState implements scoreboard.Broadcaster.
func (s *Service) BroadcastState(snapshot scoreboard.Snapshot) {
	frame, err := marshalEnvelope(MsgStateUpdate, StateUpdatePayload{Mats: snapshot})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal state update")
		return
	}
	s.cm.enqueue(s.cm.stateCh, "state", frame)
}

// BroadcastBuzzer implements scoreboard.Broadcaster. Buzzer frames share the
// state topic so they stay ordered with the snapshot that zeroed the clock.
func (s *Service) BroadcastBuzzer(stationID int) {
	frame, err := marshalEnvelope(MsgBuzzer, BuzzerPayload{Mat: stationID})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal buzzer")
		return
	}
	s.cm.enqueue(s.cm.stateCh, "state", frame)
}

// BroadcastPresence implements presence.Broadcaster.
func (s *Service) BroadcastPresence(devices []presence.DeviceRecord) {
	frame, err := marshalEnvelope(MsgDeviceStatusUpdate, DeviceStatusPayload{Devices: devices})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal device status")
		return
	}
	s.cm.enqueue(s.cm.presenceCh, "presence", frame)
}

func (s *Service) initialFrames() [][]byte {
	var frames [][]byte
	if frame, err := marshalEnvelope(MsgStateUpdate, StateUpdatePayload{Mats: s.registry.Snapshot()}); err == nil {
		frames = append(frames, frame)
	}
	if frame, err := marshalEnvelope(MsgDeviceStatusUpdate, DeviceStatusPayload{Devices: s.monitor.Snapshot()}); err == nil {
		frames = append(frames, frame)
	}
	return frames
}

// handleMessage dispatches one inbound intent. Malformed frames and unknown
// types are logged and dropped; state-machine validation failures are silent
// no-ops per the control-surface contract.
func (s *Service) handleMessage(connectionID string, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("connection_id", connectionID).Msg("malformed frame ignored")
		return
	}

	switch env.Type {
	case MsgRegisterDevice:
		var p RegisterDevicePayload
		if decode(connectionID, env, &p) {
			s.monitor.Register(connectionID, p.Role, p.Mat)
		}

	case MsgHeartbeat:
		var p HeartbeatPayload
		if decode(connectionID, env, &p) {
			s.monitor.Heartbeat(connectionID, p.Role, p.Mat, p.ClientTime())
		}

	case MsgDiagnostics:
		var p DiagnosticsPayload
		if decode(connectionID, env, &p) {
			log.Debug().
				Str("connection_id", connectionID).
				Int("station_id", p.Mat).
				Interface("metrics", p.Metrics).
				Msg("client diagnostics")
			s.monitor.Heartbeat(connectionID, p.Role, p.Mat, time.Now())
		}

	case MsgUpdateState:
		var p UpdateStatePayload
		if decode(connectionID, env, &p) {
			s.registry.ApplyUpdate(p.Mat, p.Updates)
		}

	case MsgAddPoints:
		var p AddPointsPayload
		if decode(connectionID, env, &p) {
			s.registry.AddPoints(p.Mat, p.Side, p.Points)
		}

	case MsgSubPoint:
		var p SubPointPayload
		if decode(connectionID, env, &p) {
			s.registry.SubtractPoint(p.Mat, p.Side)
		}

	case MsgResetStation:
		var p ResetStationPayload
		if decode(connectionID, env, &p) {
			s.registry.ResetStation(p.Mat)
		}

	case MsgMatchEnded:
		var p MatchEndedPayload
		if decode(connectionID, env, &p) {
			s.registry.RecordMatchEnded(p.Mat, scoreboard.MatchEnded{
				Winner:   p.Winner,
				Metadata: p.Metadata,
			})
		}

	default:
		log.Warn().
			Str("connection_id", connectionID).
			Str("type", string(env.Type)).
			Msg("unknown message type ignored")
	}
}

func decode(connectionID string, env Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", connectionID).
			Str("type", string(env.Type)).
			Msg("malformed payload ignored")
		return false
	}
	return true
}
