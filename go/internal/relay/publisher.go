// Package relay mirrors every broadcast onto NATS subjects so out-of-process
// display boards can follow the scoreboard without a WebSocket connection.
// The relay is optional; when no NATS URL is configured it is simply not
// wired in.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/matside/scoreboard-server/go/internal/presence"
	"github.com/matside/scoreboard-server/go/internal/scoreboard"
)

// Config holds the NATS target and subject namespace.
type Config struct {
	URL           string
	SubjectPrefix string
	ReconnectWait time.Duration
}

// DefaultConfig returns the standard relay settings for a local broker.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "scoreboard",
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher implements scoreboard.Broadcaster and presence.Broadcaster by
// publishing JSON payloads to <prefix>.state, <prefix>.buzzer and
// <prefix>.presence.
type Publisher struct {
	nc     *nats.Conn
	config Config
}

// Connect dials the broker with infinite reconnects; a scoreboard must keep
// serving its local observers through broker outages.
func Connect(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", config.URL).Str("prefix", config.SubjectPrefix).Msg("relay connected")
	return &Publisher{nc: nc, config: config}, nil
}

// Close drains and closes the broker connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("NATS drain failed")
	}
}

// BroadcastState implements scoreboard.Broadcaster.
func (p *Publisher) BroadcastState(snapshot scoreboard.Snapshot) {
	p.publish("state", map[string]scoreboard.Snapshot{"mats": snapshot})
}

// BroadcastBuzzer implements scoreboard.Broadcaster.
func (p *Publisher) BroadcastBuzzer(stationID int) {
	p.publish("buzzer", map[string]int{"mat": stationID})
}

// BroadcastPresence implements presence.Broadcaster.
func (p *Publisher) BroadcastPresence(devices []presence.DeviceRecord) {
	p.publish("presence", map[string][]presence.DeviceRecord{"devices": devices})
}

func (p *Publisher) publish(topic string, payload any) {
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, topic)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal relay payload")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("relay publish failed")
	}
}
