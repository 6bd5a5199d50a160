// Package archive owns the durable documents: the externally-editable
// events list and the append-only match-result log. Both live in memory as
// the working copy and are pushed wholesale to the remote versioned store.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/matside/scoreboard-server/go/clients/githubstore"
	"github.com/matside/scoreboard-server/go/internal/scoreboard"
)

// ErrPersistenceDisabled is returned when no store credential was configured
// at startup. Writes short-circuit without network calls.
var ErrPersistenceDisabled = errors.New("persistence disabled: store credential missing")

// Store is the versioned blob store the coordinator writes to. Get returns
// the current content and version token; Put rejects stale tokens with
// githubstore.ErrConflict.
type Store interface {
	Get(ctx context.Context, path string) (content []byte, version string, err error)
	Put(ctx context.Context, path string, content []byte, version string, message string) error
}

// Config holds the document paths and retry policy.
type Config struct {
	EventsPath  string
	ResultsPath string
	MaxRetries  int
	RetryDelay  time.Duration
	QueueSize   int
}

// DefaultConfig matches the documents the scoreboard has always persisted.
func DefaultConfig() Config {
	return Config{
		EventsPath:  "public/events.json",
		ResultsPath: "public/match-results.json",
		MaxRetries:  3,
		RetryDelay:  time.Second,
		QueueSize:   64,
	}
}

// WriteResult reports the outcome of one durable write cycle. Exposed so
// tests and metrics can observe fire-and-forget persistence.
type WriteResult struct {
	Path string
	Err  error
}

type writeRequest struct {
	payload []byte
	message string
	done    chan error // nil for fire-and-forget
}

// Coordinator serializes writes per logical document: one writer goroutine
// per path, so two read-modify-write cycles for the same document are never
// in flight together. Persistence is best-effort relative to the in-memory
// copy; a failed write never rolls state back.
type Coordinator struct {
	store  Store // nil when persistence is disabled
	config Config

	mu      sync.RWMutex
	events  []json.RawMessage
	results []json.RawMessage

	queues   map[string]chan writeRequest
	outcomes chan WriteResult

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewCoordinator builds a coordinator. store may be nil; every write then
// fails with ErrPersistenceDisabled while the in-memory documents keep
// working.
func NewCoordinator(store Store, config Config) *Coordinator {
	return &Coordinator{
		store:  store,
		config: config,
		queues: map[string]chan writeRequest{
			config.EventsPath:  make(chan writeRequest, config.QueueSize),
			config.ResultsPath: make(chan writeRequest, config.QueueSize),
		},
		outcomes: make(chan WriteResult, config.QueueSize),
	}
}

// Load pulls both documents from the remote store. Absent documents start
// empty; that is the create-on-first-write case, not an error.
func (c *Coordinator) Load(ctx context.Context) error {
	if c.store == nil {
		return ErrPersistenceDisabled
	}

	events, err := c.loadDocument(ctx, c.config.EventsPath)
	if err != nil {
		return err
	}
	results, err := c.loadDocument(ctx, c.config.ResultsPath)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.events = events
	c.results = results
	c.mu.Unlock()

	log.Info().
		Int("events", len(events)).
		Int("results", len(results)).
		Msg("documents loaded from remote store")
	return nil
}

func (c *Coordinator) loadDocument(ctx context.Context, path string) ([]json.RawMessage, error) {
	content, _, err := c.store.Get(ctx, path)
	if errors.Is(err, githubstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return entries, nil
}

// Events returns a copy of the current events document.
func (c *Coordinator) Events() []json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]json.RawMessage{}, c.events...)
}

// MatchResults returns a copy of the match-result log.
func (c *Coordinator) MatchResults() []json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]json.RawMessage{}, c.results...)
}

// ReplaceEvents overwrites the events document wholesale and waits for the
// durable write. The in-memory copy is replaced regardless of the write
// outcome.
func (c *Coordinator) ReplaceEvents(ctx context.Context, events []json.RawMessage) error {
	c.mu.Lock()
	c.events = append([]json.RawMessage(nil), events...)
	payload := marshalEntries(c.events)
	c.mu.Unlock()

	return c.enqueueSync(ctx, c.config.EventsPath, payload, "Update events.json")
}

// AppendMatchResult implements scoreboard.ResultSink: append, then persist
// fire-and-forget. The caller is never blocked on the durable write; its
// outcome is observable via Outcomes and the log.
func (c *Coordinator) AppendMatchResult(result scoreboard.MatchResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		log.Error().Err(err).Int("station_id", result.StationID).Msg("failed to encode match result")
		return
	}
	c.appendResult(raw, false, nil)
}

// SaveMatchResult appends a raw result entry and waits for the durable
// write; the admin REST surface needs the structured failure.
func (c *Coordinator) SaveMatchResult(ctx context.Context, entry json.RawMessage) error {
	done := make(chan error, 1)
	c.appendResult(entry, true, done)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) appendResult(entry json.RawMessage, wait bool, done chan error) {
	c.mu.Lock()
	c.results = append(c.results, entry)
	payload := marshalEntries(c.results)
	c.mu.Unlock()

	req := writeRequest{payload: payload, message: "Add match result", done: done}
	if wait {
		c.queues[c.config.ResultsPath] <- req
		return
	}
	c.enqueueAsync(c.config.ResultsPath, req)
}

// Outcomes exposes completed write cycles for tests and metrics.
func (c *Coordinator) Outcomes() <-chan WriteResult {
	return c.outcomes
}

// Start launches one writer goroutine per document. No-op if running.
func (c *Coordinator) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})

	for path, queue := range c.queues {
		c.wg.Add(1)
		go c.runWriter(ctx, path, queue, c.stopChan)
	}

	log.Info().
		Str("events_path", c.config.EventsPath).
		Str("results_path", c.config.ResultsPath).
		Bool("persistence_enabled", c.store != nil).
		Msg("persistence coordinator started")
}

// Stop halts the writer goroutines after their in-flight write. Idempotent.
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.runMu.Unlock()

	c.wg.Wait()
	log.Info().Msg("persistence coordinator stopped")
}

func (c *Coordinator) enqueueSync(ctx context.Context, path string, payload []byte, message string) error {
	done := make(chan error, 1)
	select {
	case c.queues[path] <- writeRequest{payload: payload, message: message, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) enqueueAsync(path string, req writeRequest) {
	select {
	case c.queues[path] <- req:
	default:
		err := fmt.Errorf("write queue full for %s", path)
		log.Error().Str("path", path).Msg("dropping durable write, queue full")
		c.report(WriteResult{Path: path, Err: err})
	}
}

func (c *Coordinator) runWriter(ctx context.Context, path string, queue <-chan writeRequest, stop <-chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case req := <-queue:
			err := c.writeWithRetry(ctx, path, req)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("durable write failed")
			} else {
				log.Info().Str("path", path).Msg("durable write succeeded")
			}
			if req.done != nil {
				req.done <- err
			}
			c.report(WriteResult{Path: path, Err: err})
		}
	}
}

// writeWithRetry runs the read-modify-write cycle: fetch the current version
// token, then put the full payload under it. Conflicts re-read and re-write
// up to the retry budget; credential failures are fatal and never retried.
func (c *Coordinator) writeWithRetry(ctx context.Context, path string, req writeRequest) error {
	if c.store == nil {
		return ErrPersistenceDisabled
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		_, version, err := c.store.Get(ctx, path)
		if err != nil && !errors.Is(err, githubstore.ErrNotFound) {
			if errors.Is(err, githubstore.ErrUnauthorized) {
				return err
			}
			lastErr = err
			log.Warn().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("read before write failed, retrying")
			continue
		}

		err = c.store.Put(ctx, path, req.payload, version, req.message)
		if err == nil {
			return nil
		}
		if errors.Is(err, githubstore.ErrUnauthorized) {
			return err
		}
		lastErr = err
		log.Warn().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("write failed, retrying")
	}

	return fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Coordinator) report(result WriteResult) {
	select {
	case c.outcomes <- result:
	default:
	}
}

func marshalEntries(entries []json.RawMessage) []byte {
	if entries == nil {
		entries = []json.RawMessage{}
	}
	payload, _ := json.MarshalIndent(entries, "", "  ")
	return payload
}
