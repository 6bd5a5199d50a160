package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matside/scoreboard-server/go/internal/presence"
	"github.com/matside/scoreboard-server/go/internal/scoreboard"
)

// MessageType discriminates the envelope carried over the control channel.
type MessageType string

// Inbound intents from control/display clients.
const (
	MsgRegisterDevice MessageType = "registerDevice"
	MsgHeartbeat      MessageType = "heartbeat"
	MsgDiagnostics    MessageType = "diagnostics"
	MsgUpdateState    MessageType = "updateState"
	MsgAddPoints      MessageType = "addPoints"
	MsgSubPoint       MessageType = "subPoint"
	MsgResetStation   MessageType = "resetStation"
	MsgMatchEnded     MessageType = "matchEnded"
)

// Outbound messages to observers.
const (
	MsgStateUpdate        MessageType = "stateUpdate"
	MsgDeviceStatusUpdate MessageType = "deviceStatusUpdate"
	MsgBuzzer             MessageType = "buzzer"
)

// Envelope is the wire frame: a type tag and a type-specific payload.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RegisterDevicePayload announces a device and its station.
type RegisterDevicePayload struct {
	Role presence.Role `json:"role"`
	Mat  int           `json:"mat"`
}

// HeartbeatPayload keeps a device marked online. ClientTimestamp is
// milliseconds since epoch on the client's clock, used only for skew
// diagnostics.
type HeartbeatPayload struct {
	Role            presence.Role `json:"role"`
	Mat             int           `json:"mat"`
	ClientTimestamp int64         `json:"clientTimestamp"`
}

// ClientTime converts the client-reported timestamp.
func (p HeartbeatPayload) ClientTime() time.Time {
	return time.UnixMilli(p.ClientTimestamp)
}

// DiagnosticsPayload carries free-form client metrics. Logged, and counted
// as a heartbeat.
type DiagnosticsPayload struct {
	Role    presence.Role              `json:"role"`
	Mat     int                        `json:"mat"`
	Metrics map[string]json.RawMessage `json:"metrics,omitempty"`
}

// UpdateStatePayload patches recognized fields on one station.
type UpdateStatePayload struct {
	Mat     int                      `json:"mat"`
	Updates scoreboard.StationUpdate `json:"updates"`
}

// AddPointsPayload adjusts one side's score; negative points are penalty
// corrections.
type AddPointsPayload struct {
	Mat    int             `json:"mat"`
	Side   scoreboard.Side `json:"side"`
	Points int             `json:"pts"`
}

// SubPointPayload removes a single point from one side.
type SubPointPayload struct {
	Mat  int             `json:"mat"`
	Side scoreboard.Side `json:"side"`
}

// ResetStationPayload restores one station to defaults.
type ResetStationPayload struct {
	Mat int `json:"mat"`
}

// MatchEndedPayload finalizes the match on one station.
type MatchEndedPayload struct {
	Mat      int                        `json:"mat"`
	Winner   string                     `json:"winner,omitempty"`
	Metadata map[string]json.RawMessage `json:"metadata,omitempty"`
}

// StateUpdatePayload is the authoritative snapshot of every station.
type StateUpdatePayload struct {
	Mats scoreboard.Snapshot `json:"mats"`
}

// DeviceStatusPayload is the full device-presence view.
type DeviceStatusPayload struct {
	Devices []presence.DeviceRecord `json:"devices"`
}

// BuzzerPayload signals that one station's clock expired without
// auto-advance.
type BuzzerPayload struct {
	Mat int `json:"mat"`
}

func marshalEnvelope(t MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}
