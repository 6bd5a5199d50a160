package scoreboard

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickInterval is the fixed cadence of the timer driver.
const TickInterval = time.Second

// TimerDriver steps every station once per second from a single ticker.
// One loop for all stations keeps broadcast amplification at O(1) per tick
// and avoids the drift of per-station scheduling.
type TimerDriver struct {
	registry *Registry
	clock    clockwork.Clock

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewTimerDriver creates a driver for the given registry. The clock is
// injectable so tests can advance time deterministically.
func NewTimerDriver(registry *Registry, clock clockwork.Clock) *TimerDriver {
	return &TimerDriver{
		registry: registry,
		clock:    clock,
	}
}

// Start launches the tick loop. Starting an already-running driver is a
// no-op.
func (d *TimerDriver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopChan = make(chan struct{})

	d.wg.Add(1)
	go d.run(ctx, d.stopChan)

	log.Info().Dur("interval", TickInterval).Msg("timer driver started")
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
// Idempotent; no tick fires after Stop returns.
func (d *TimerDriver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	log.Info().Msg("timer driver stopped")
}

func (d *TimerDriver) run(ctx context.Context, stop <-chan struct{}) {
	defer d.wg.Done()

	ticker := d.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			d.registry.Tick()
		}
	}
}
