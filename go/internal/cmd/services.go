package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/matside/scoreboard-server/go/clients/githubstore"
	"github.com/matside/scoreboard-server/go/internal/archive"
	"github.com/matside/scoreboard-server/go/internal/presence"
	"github.com/matside/scoreboard-server/go/internal/scoreboard"
)

func setupLogger(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// setupStore builds the remote store client. A missing credential is a fatal
// configuration error for persistence only: it is logged exactly once and the
// scoreboard runs with persistence short-circuited.
func setupStore(cfg Config) archive.Store {
	client, err := githubstore.New(githubstore.Config{
		APIBase: cfg.Store.APIBase,
		Repo:    cfg.Store.Repo,
		Token:   cfg.Store.Token,
	})
	if err != nil {
		log.Error().Err(err).Msg("remote store unavailable, running without persistence")
		return nil
	}
	return client
}

// stateFanout delivers station broadcasts to every configured sink (the
// WebSocket gateway, plus the NATS relay when enabled).
type stateFanout []scoreboard.Broadcaster

func (f stateFanout) BroadcastState(snapshot scoreboard.Snapshot) {
	for _, bc := range f {
		bc.BroadcastState(snapshot)
	}
}

func (f stateFanout) BroadcastBuzzer(stationID int) {
	for _, bc := range f {
		bc.BroadcastBuzzer(stationID)
	}
}

// presenceFanout is the same composition for the presence topic.
type presenceFanout []presence.Broadcaster

func (f presenceFanout) BroadcastPresence(devices []presence.DeviceRecord) {
	for _, bc := range f {
		bc.BroadcastPresence(devices)
	}
}
