package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/matside/scoreboard-server/go/internal/archive"
	"github.com/matside/scoreboard-server/go/internal/gateway"
	"github.com/matside/scoreboard-server/go/internal/presence"
	"github.com/matside/scoreboard-server/go/internal/relay"
	"github.com/matside/scoreboard-server/go/internal/rest"
	"github.com/matside/scoreboard-server/go/internal/scoreboard"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(getEnv("SCOREBOARD_CONFIG", "scoreboard.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	store := setupStore(cfg)
	coordinator := archive.NewCoordinator(store, archive.Config{
		EventsPath:  cfg.Store.EventsPath,
		ResultsPath: cfg.Store.ResultsPath,
		MaxRetries:  3,
		RetryDelay:  time.Second,
		QueueSize:   64,
	})
	if store != nil {
		if err := coordinator.Load(ctx); err != nil {
			log.Warn().Err(err).Msg("could not load documents, starting empty")
		}
	}

	registry := scoreboard.NewRegistry(cfg.Stations.Count, cfg.Stations.PeriodLengthSeconds, clock)
	registry.SetResultSink(coordinator)

	monitor := presence.NewMonitor(presence.Config{
		HeartbeatTimeout: cfg.heartbeatTimeout(),
		SweepInterval:    cfg.sweepInterval(),
	}, clock)

	gw := gateway.NewService(gateway.DefaultConnectionConfig(), registry, monitor)

	stateSinks := stateFanout{gw}
	presenceSinks := presenceFanout{gw}
	if cfg.NATS.URL != "" {
		pub, err := relay.Connect(relay.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			ReconnectWait: 2 * time.Second,
		})
		if err != nil {
			log.Error().Err(err).Msg("relay unavailable, continuing without it")
		} else {
			defer pub.Close()
			stateSinks = append(stateSinks, pub)
			presenceSinks = append(presenceSinks, pub)
		}
	}
	registry.SetBroadcaster(stateSinks)
	monitor.SetBroadcaster(presenceSinks)

	driver := scoreboard.NewTimerDriver(registry, clock)

	coordinator.Start(ctx)
	defer coordinator.Stop()
	monitor.Start(ctx)
	defer monitor.Stop()
	driver.Start(ctx)
	defer driver.Stop()

	server := setupServer(cfg, gw, rest.NewHandlers(coordinator))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gw.Manager().Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
