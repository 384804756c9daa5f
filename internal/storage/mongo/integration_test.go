//go:build integration

package mongo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"auction_watcher/internal/domain"
)

type MongoIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *mongodb.MongoDBContainer
	client    *mongo.Client
	db        *mongo.Database
}

func (s *MongoIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := mongodb.Run(s.ctx, "mongo:7")
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)

	client, db, err := Connect(s.ctx, uri, "auction_watcher_test")
	s.Require().NoError(err)
	s.client = client
	s.db = db

	s.Require().NoError(EnsureIndexes(s.ctx, db))
}

func (s *MongoIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Disconnect(s.ctx)
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *MongoIntegrationSuite) SetupTest() {
	for _, name := range []string{cacheCollection, arrivalsCollection, urgentCollection} {
		_, _ = s.db.Collection(name).DeleteMany(s.ctx, bson.M{})
	}
}

func TestMongoIntegrationSuite(t *testing.T) {
	suite.Run(t, new(MongoIntegrationSuite))
}

func minutes(n int) *int { return &n }

func (s *MongoIntegrationSuite) TestCache_PutAndGetCurrent() {
	store := NewCacheStore(s.db)

	err := store.Put(s.ctx, "gitarr", []domain.Listing{
		{ID: "840444", Title: "Gitarr", SearchTerms: []string{"gitarr"}, MinutesRemaining: minutes(45)},
		{ID: "2", Title: "Bas", SearchTerms: []string{"gitarr"}},
	}, time.Hour)
	s.Require().NoError(err)

	entries, err := store.GetCurrent(s.ctx, "gitarr")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("840444", entries[0].Listing.ID)
	s.Require().NotNil(entries[0].Listing.MinutesRemaining)
	s.Equal(45, *entries[0].Listing.MinutesRemaining)
	s.Nil(entries[1].Listing.MinutesRemaining)

	missing, err := store.GetCurrent(s.ctx, "trumset")
	s.Require().NoError(err)
	s.Empty(missing)
}

func (s *MongoIntegrationSuite) TestCache_ExpiredPartitionIsNotServed() {
	store := NewCacheStore(s.db)
	store.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	s.Require().NoError(store.Put(s.ctx, "gitarr", []domain.Listing{{ID: "1"}}, time.Hour))

	store.now = time.Now
	entries, err := store.GetCurrent(s.ctx, "gitarr")
	s.Require().NoError(err)
	s.Empty(entries)

	stats, err := store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.Partitions)
	s.Equal(1, stats.ExpiredPartitions)
}

func (s *MongoIntegrationSuite) TestCache_DeleteAndInvalidate() {
	store := NewCacheStore(s.db)
	s.Require().NoError(store.Put(s.ctx, "gitarr", []domain.Listing{{ID: "1"}, {ID: "2"}, {ID: "3"}}, time.Hour))

	removed, err := store.Delete(s.ctx, "gitarr", []string{"1", "3", "missing"})
	s.Require().NoError(err)
	s.Equal(2, removed)

	entries, err := store.GetCurrent(s.ctx, "gitarr")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("2", entries[0].Listing.ID)

	removed, err = store.Delete(s.ctx, "absent", []string{"2"})
	s.Require().NoError(err)
	s.Zero(removed)

	s.Require().NoError(store.Invalidate(s.ctx, "gitarr"))
	stats, err := store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(stats.Partitions)
}

func (s *MongoIntegrationSuite) TestCache_ConcurrentDeletesCountOnce() {
	store := NewCacheStore(s.db)
	s.Require().NoError(store.Put(s.ctx, "gitarr", []domain.Listing{{ID: "1"}, {ID: "2"}}, time.Hour))

	var (
		wg    sync.WaitGroup
		total atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.Delete(s.ctx, "gitarr", []string{"1", "2"})
			s.NoError(err)
			total.Add(int32(n))
		}()
	}
	wg.Wait()

	s.Equal(int32(2), total.Load())
}

func (s *MongoIntegrationSuite) TestLedger_TryRecordOnce() {
	ledger := NewLedgerStore(s.db)
	entry := domain.LedgerEntry{ListingID: "840444", FirstSeenAt: time.Now().UTC(), Title: "Gitarr"}

	ok, err := ledger.TryRecord(s.ctx, domain.LedgerArrival, entry)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = ledger.TryRecord(s.ctx, domain.LedgerArrival, entry)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = ledger.TryRecord(s.ctx, domain.LedgerUrgent, entry)
	s.Require().NoError(err)
	s.True(ok)

	ids, err := ledger.LoadIDs(s.ctx, domain.LedgerArrival)
	s.Require().NoError(err)
	s.Equal([]string{"840444"}, ids)
}

func (s *MongoIntegrationSuite) TestLedger_ConcurrentRecord() {
	ledger := NewLedgerStore(s.db)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.TryRecord(s.ctx, domain.LedgerArrival, domain.LedgerEntry{
				ListingID:   "1",
				FirstSeenAt: time.Now().UTC(),
			})
			s.NoError(err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), granted.Load())
}
