package archive_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matside/scoreboard-server/go/clients/githubstore"
	"github.com/matside/scoreboard-server/go/internal/archive"
	"github.com/matside/scoreboard-server/go/internal/scoreboard"
)

// fakeStore is an in-memory versioned document store with the same
// optimistic-concurrency contract as the real one.
type fakeStore struct {
	mu        sync.Mutex
	docs      map[string][]byte
	versions  map[string]int
	putCalls  int
	conflicts int  // inject this many stale-token rejections
	authFail  bool // reject everything as unauthorized
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[string][]byte),
		versions: make(map[string]int),
	}
}

func (s *fakeStore) Get(ctx context.Context, path string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authFail {
		return nil, "", githubstore.ErrUnauthorized
	}
	content, ok := s.docs[path]
	if !ok {
		return nil, "", githubstore.ErrNotFound
	}
	return content, strconv.Itoa(s.versions[path]), nil
}

func (s *fakeStore) Put(ctx context.Context, path string, content []byte, version string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.authFail {
		return githubstore.ErrUnauthorized
	}
	if s.conflicts > 0 {
		s.conflicts--
		return githubstore.ErrConflict
	}
	current, exists := s.versions[path]
	if exists && version != strconv.Itoa(current) {
		return githubstore.ErrConflict
	}
	if !exists && version != "" {
		return githubstore.ErrConflict
	}
	s.docs[path] = content
	s.versions[path] = current + 1
	return nil
}

func testConfig() archive.Config {
	return archive.Config{
		EventsPath:  "public/events.json",
		ResultsPath: "public/match-results.json",
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
		QueueSize:   8,
	}
}

func startCoordinator(t *testing.T, store archive.Store) *archive.Coordinator {
	t.Helper()
	c := archive.NewCoordinator(store, testConfig())
	c.Start(t.Context())
	t.Cleanup(c.Stop)
	return c
}

func TestLoadMissingDocumentsStartEmpty(t *testing.T) {
	c := archive.NewCoordinator(newFakeStore(), testConfig())
	require.NoError(t, c.Load(context.Background()))
	assert.Empty(t, c.Events())
	assert.Empty(t, c.MatchResults())
}

func TestLoadExistingDocuments(t *testing.T) {
	store := newFakeStore()
	store.docs["public/events.json"] = []byte(`[{"name":"Winter Open"}]`)
	store.versions["public/events.json"] = 1

	c := archive.NewCoordinator(store, testConfig())
	require.NoError(t, c.Load(context.Background()))

	events := c.Events()
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"name":"Winter Open"}`, string(events[0]))
}

func TestReplaceEventsWritesWholesale(t *testing.T) {
	store := newFakeStore()
	c := startCoordinator(t, store)

	events := []json.RawMessage{json.RawMessage(`{"name":"Winter Open"}`)}
	require.NoError(t, c.ReplaceEvents(context.Background(), events))

	var saved []json.RawMessage
	require.NoError(t, json.Unmarshal(store.docs["public/events.json"], &saved))
	require.Len(t, saved, 1)
	assert.JSONEq(t, `{"name":"Winter Open"}`, string(saved[0]))
}

func TestConflictIsRetriedToSuccess(t *testing.T) {
	store := newFakeStore()
	store.conflicts = 1
	c := startCoordinator(t, store)

	err := c.ReplaceEvents(context.Background(), []json.RawMessage{json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, store.putCalls, "stale token must trigger one re-read/re-write cycle")
}

func TestRepeatedConflictsSurfaceAsFailure(t *testing.T) {
	store := newFakeStore()
	store.conflicts = 100
	c := startCoordinator(t, store)

	err := c.ReplaceEvents(context.Background(), []json.RawMessage{json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, githubstore.ErrConflict)
	assert.Equal(t, 4, store.putCalls, "bounded attempts, never silent")

	// The in-memory copy is never rolled back by a persistence failure.
	assert.Len(t, c.Events(), 1)
}

func TestUnauthorizedIsFatalNotRetried(t *testing.T) {
	store := newFakeStore()
	store.authFail = true
	c := startCoordinator(t, store)

	err := c.ReplaceEvents(context.Background(), []json.RawMessage{json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, githubstore.ErrUnauthorized)
	assert.Zero(t, store.putCalls, "credential failure short-circuits before the write")
}

func TestDisabledPersistenceShortCircuits(t *testing.T) {
	c := startCoordinator(t, nil)

	err := c.ReplaceEvents(context.Background(), []json.RawMessage{json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, archive.ErrPersistenceDisabled)

	// The live documents keep working without a store.
	assert.Len(t, c.Events(), 1)
}

func TestAppendMatchResultIsAsyncAndObservable(t *testing.T) {
	store := newFakeStore()
	c := startCoordinator(t, store)

	c.AppendMatchResult(scoreboard.MatchResult{
		StationID: 1,
		ScoreA:    10,
		ScoreB:    4,
		Winner:    "A",
		Segment:   scoreboard.SegmentREG3,
		Timestamp: time.Date(2026, 2, 14, 18, 30, 0, 0, time.UTC),
	})

	select {
	case outcome := <-c.Outcomes():
		assert.Equal(t, "public/match-results.json", outcome.Path)
		assert.NoError(t, outcome.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write outcome")
	}

	results := c.MatchResults()
	require.Len(t, results, 1)
	assert.Contains(t, string(results[0]), `"winner":"A"`)

	var saved []json.RawMessage
	require.NoError(t, json.Unmarshal(store.docs["public/match-results.json"], &saved))
	assert.Len(t, saved, 1)
}

func TestWritesForOneDocumentAreSerialized(t *testing.T) {
	store := newFakeStore()
	c := startCoordinator(t, store)

	for i := 0; i < 5; i++ {
		c.AppendMatchResult(scoreboard.MatchResult{StationID: 1, ScoreA: i})
	}

	deadline := time.After(5 * time.Second)
	for i := 0; i < 5; i++ {
		select {
		case outcome := <-c.Outcomes():
			require.NoError(t, outcome.Err)
		case <-deadline:
			t.Fatal("timed out waiting for write outcomes")
		}
	}

	// The last writer's payload wins and contains the full log.
	var saved []json.RawMessage
	require.NoError(t, json.Unmarshal(store.docs["public/match-results.json"], &saved))
	assert.Len(t, saved, 5)
}

func TestSaveMatchResultReportsStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.conflicts = 100
	c := startCoordinator(t, store)

	err := c.SaveMatchResult(context.Background(), json.RawMessage(`{"mat":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("failed after %d attempts", 4))
}
