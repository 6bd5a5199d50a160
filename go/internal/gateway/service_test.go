package gateway_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matside/scoreboard-server/go/internal/gateway"
	"github.com/matside/scoreboard-server/go/internal/presence"
	"github.com/matside/scoreboard-server/go/internal/scoreboard"
)

type testServer struct {
	svc      *gateway.Service
	registry *scoreboard.Registry
	monitor  *presence.Monitor
	url      string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClock()
	registry := scoreboard.NewRegistry(2, 60, clock)
	monitor := presence.NewMonitor(presence.DefaultConfig(), clock)

	svc := gateway.NewService(gateway.DefaultConnectionConfig(), registry, monitor)
	registry.SetBroadcaster(svc)
	monitor.SetBroadcaster(svc)

	go svc.Manager().Start(t.Context())

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{
		svc:      svc,
		registry: registry,
		monitor:  monitor,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want gateway.MessageType) gateway.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var env gateway.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == want {
			return env
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType gateway.MessageType, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(gateway.Envelope{Type: msgType, Data: data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestNewObserverReceivesSnapshotsImmediately(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts.url)

	env := readUntil(t, conn, gateway.MsgStateUpdate)
	var state gateway.StateUpdatePayload
	require.NoError(t, json.Unmarshal(env.Data, &state))
	require.Len(t, state.Mats, 2)
	assert.Equal(t, 60, state.Mats[1].TimeRemainingSeconds)

	env = readUntil(t, conn, gateway.MsgDeviceStatusUpdate)
	var devices gateway.DeviceStatusPayload
	require.NoError(t, json.Unmarshal(env.Data, &devices))
	assert.Empty(t, devices.Devices)
}

func TestRegisterDeviceBroadcastsPresence(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts.url)

	send(t, conn, gateway.MsgRegisterDevice, gateway.RegisterDevicePayload{
		Role: presence.RoleControl,
		Mat:  1,
	})

	require.Eventually(t, func() bool {
		devices := ts.monitor.Snapshot()
		return len(devices) == 1 && devices[0].Online
	}, 2*time.Second, 10*time.Millisecond)

	env := readUntil(t, conn, gateway.MsgDeviceStatusUpdate)
	var devices gateway.DeviceStatusPayload
	require.NoError(t, json.Unmarshal(env.Data, &devices))
	for len(devices.Devices) == 0 {
		env = readUntil(t, conn, gateway.MsgDeviceStatusUpdate)
		require.NoError(t, json.Unmarshal(env.Data, &devices))
	}
	assert.Equal(t, presence.RoleControl, devices.Devices[0].Role)
	assert.Equal(t, 1, devices.Devices[0].StationID)
}

func TestScoringIntentsReachAllObservers(t *testing.T) {
	ts := newTestServer(t)
	controller := dial(t, ts.url)
	display := dial(t, ts.url)

	send(t, controller, gateway.MsgAddPoints, gateway.AddPointsPayload{
		Mat:    1,
		Side:   scoreboard.SideA,
		Points: 3,
	})

	for _, conn := range []*websocket.Conn{controller, display} {
		var state gateway.StateUpdatePayload
		for {
			env := readUntil(t, conn, gateway.MsgStateUpdate)
			require.NoError(t, json.Unmarshal(env.Data, &state))
			if state.Mats[1].ScoreA == 3 {
				break
			}
		}
		assert.Zero(t, state.Mats[1].ScoreB)
		assert.Zero(t, state.Mats[2].ScoreA)
	}
}

func TestUpdateStateAndResetIntents(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts.url)

	send(t, conn, gateway.MsgUpdateState, gateway.UpdateStatePayload{
		Mat: 2,
		Updates: scoreboard.StationUpdate{
			Running:              ptr(true),
			TimeRemainingSeconds: ptr(30),
		},
	})

	require.Eventually(t, func() bool {
		st := ts.registry.Snapshot()[2]
		return st.Running && st.TimeRemainingSeconds == 30
	}, 2*time.Second, 10*time.Millisecond)

	send(t, conn, gateway.MsgResetStation, gateway.ResetStationPayload{Mat: 2})

	require.Eventually(t, func() bool {
		st := ts.registry.Snapshot()[2]
		return !st.Running && st.TimeRemainingSeconds == 60
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts.url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport","data":{}}`)))
	send(t, conn, gateway.MsgAddPoints, gateway.AddPointsPayload{Mat: 1, Side: scoreboard.SideB, Points: 2})

	require.Eventually(t, func() bool {
		return ts.registry.Snapshot()[1].ScoreB == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMatchEndedIntent(t *testing.T) {
	ts := newTestServer(t)
	sink := &captureSink{results: make(chan scoreboard.MatchResult, 1)}
	ts.registry.SetResultSink(sink)

	conn := dial(t, ts.url)
	send(t, conn, gateway.MsgAddPoints, gateway.AddPointsPayload{Mat: 1, Side: scoreboard.SideA, Points: 6})
	send(t, conn, gateway.MsgMatchEnded, gateway.MatchEndedPayload{Mat: 1, Winner: "A"})

	select {
	case result := <-sink.results:
		assert.Equal(t, 1, result.StationID)
		assert.Equal(t, 6, result.ScoreA)
		assert.Equal(t, "A", result.Winner)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for match result")
	}
}

type captureSink struct {
	results chan scoreboard.MatchResult
}

func (s *captureSink) AppendMatchResult(r scoreboard.MatchResult) {
	s.results <- r
}

func ptr[T any](v T) *T { return &v }
