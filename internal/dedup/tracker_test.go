package dedup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"auction_watcher/internal/domain"
)

type memoryLedger struct {
	mu      sync.Mutex
	entries map[domain.LedgerKind]map[string]domain.LedgerEntry
	calls   atomic.Int32
	loadErr error
	recErr  error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{entries: map[domain.LedgerKind]map[string]domain.LedgerEntry{
		domain.LedgerArrival: {},
		domain.LedgerUrgent:  {},
	}}
}

func (m *memoryLedger) TryRecord(_ context.Context, kind domain.LedgerKind, entry domain.LedgerEntry) (bool, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recErr != nil {
		return false, m.recErr
	}
	if _, ok := m.entries[kind][entry.ListingID]; ok {
		return false, nil
	}
	m.entries[kind][entry.ListingID] = entry
	return true, nil
}

func (m *memoryLedger) LoadIDs(_ context.Context, kind domain.LedgerKind) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	ids := make([]string, 0, len(m.entries[kind]))
	for id := range m.entries[kind] {
		ids = append(ids, id)
	}
	return ids, nil
}

type TrackerTestSuite struct {
	suite.Suite
	ctx    context.Context
	ledger *memoryLedger
	logger *slog.Logger
}

func (s *TrackerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = newMemoryLedger()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *TrackerTestSuite) newTracker() *Tracker {
	t := NewTracker(s.ledger, s.logger)
	s.Require().NoError(t.Load(s.ctx))
	return t
}

func (s *TrackerTestSuite) TestArrival_OnlyFirstCallNotifies() {
	tracker := s.newTracker()
	listing := &domain.Listing{ID: "840444", Title: "Gitarr"}

	ok, err := tracker.ShouldNotifyArrival(s.ctx, listing)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = tracker.ShouldNotifyArrival(s.ctx, listing)
	s.Require().NoError(err)
	s.False(ok)

	s.Equal(1, tracker.Count(domain.LedgerArrival))
	s.Equal(int32(1), s.ledger.calls.Load(), "second call must be answered from memory")
}

func (s *TrackerTestSuite) TestLedgersAreIndependent() {
	tracker := s.newTracker()
	listing := &domain.Listing{ID: "840444"}

	ok, err := tracker.ShouldNotifyArrival(s.ctx, listing)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = tracker.ShouldNotifyUrgent(s.ctx, listing)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = tracker.ShouldNotifyUrgent(s.ctx, listing)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *TrackerTestSuite) TestRestart_ReloadsLedger() {
	first := s.newTracker()
	listing := &domain.Listing{ID: "840444"}

	ok, err := first.ShouldNotifyArrival(s.ctx, listing)
	s.Require().NoError(err)
	s.True(ok)

	restarted := s.newTracker()
	s.Equal(1, restarted.Count(domain.LedgerArrival))

	ok, err = restarted.ShouldNotifyArrival(s.ctx, listing)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *TrackerTestSuite) TestRecordedElsewhere_NotNotified() {
	// Another process recorded the id after this tracker loaded.
	tracker := s.newTracker()
	_, err := s.ledger.TryRecord(s.ctx, domain.LedgerArrival, domain.LedgerEntry{ListingID: "1"})
	s.Require().NoError(err)

	ok, err := tracker.ShouldNotifyArrival(s.ctx, &domain.Listing{ID: "1"})
	s.Require().NoError(err)
	s.False(ok)
	s.Equal(1, tracker.Count(domain.LedgerArrival))
}

func (s *TrackerTestSuite) TestRecordError_NotCached() {
	tracker := s.newTracker()
	s.ledger.recErr = errors.New("write conflict")

	ok, err := tracker.ShouldNotifyArrival(s.ctx, &domain.Listing{ID: "1"})
	s.Error(err)
	s.False(ok)

	s.ledger.recErr = nil
	ok, err = tracker.ShouldNotifyArrival(s.ctx, &domain.Listing{ID: "1"})
	s.Require().NoError(err)
	s.True(ok, "a failed record must be retried on the next pass")
}

func (s *TrackerTestSuite) TestLoadError() {
	s.ledger.loadErr = errors.New("connection refused")
	tracker := NewTracker(s.ledger, s.logger)

	err := tracker.Load(s.ctx)
	s.ErrorContains(err, "load arrival ledger")
}

func (s *TrackerTestSuite) TestConcurrentCallers_ExactlyOneNotifies() {
	tracker := s.newTracker()
	listing := &domain.Listing{ID: "840444"}

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tracker.ShouldNotifyArrival(s.ctx, listing)
			assert.NoError(s.T(), err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), granted.Load())
}

func TestTrackerTestSuite(t *testing.T) {
	suite.Run(t, new(TrackerTestSuite))
}

func TestNewLedgerEntry(t *testing.T) {
	m := 42
	tracker := NewTracker(newMemoryLedger(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ledger := tracker.store.(*memoryLedger)

	ok, err := tracker.ShouldNotifyUrgent(context.Background(), &domain.Listing{
		ID:               "7",
		Title:            "Trumset",
		URL:              "https://example.test/7",
		MinutesRemaining: &m,
	})
	require.NoError(t, err)
	require.True(t, ok)

	entry := ledger.entries[domain.LedgerUrgent]["7"]
	assert.Equal(t, "Trumset", entry.Title)
	assert.Equal(t, "https://example.test/7", entry.URL)
	require.NotNil(t, entry.MinutesRemaining)
	assert.Equal(t, 42, *entry.MinutesRemaining)
	assert.False(t, entry.FirstSeenAt.IsZero())
}
