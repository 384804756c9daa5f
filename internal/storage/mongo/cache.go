package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"auction_watcher/internal/domain"
)

type partitionDoc struct {
	Key       string           `bson:"_id"`
	Listings  []domain.Listing `bson:"listings"`
	CachedAt  time.Time        `bson:"cached_at"`
	ExpiresAt time.Time        `bson:"expires_at"`
}

// CacheStore writes each partition as a single document, so a replace is
// atomic for readers without a transaction.
type CacheStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewCacheStore(db *mongo.Database) *CacheStore {
	return &CacheStore{
		coll: db.Collection(cacheCollection),
		now:  time.Now,
	}
}

func (s *CacheStore) Put(ctx context.Context, key string, listings []domain.Listing, ttl time.Duration) error {
	now := s.now().UTC()
	if listings == nil {
		listings = []domain.Listing{}
	}

	doc := partitionDoc{
		Key:       key,
		Listings:  listings,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace partition: %w", err)
	}
	return nil
}

func (s *CacheStore) GetCurrent(ctx context.Context, key string) ([]domain.CacheEntry, error) {
	filter := bson.M{
		"_id":        key,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}

	var doc partitionDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []domain.CacheEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find partition: %w", err)
	}

	entries := make([]domain.CacheEntry, 0, len(doc.Listings))
	for _, l := range doc.Listings {
		entries = append(entries, domain.CacheEntry{
			Listing:   l,
			CachedAt:  doc.CachedAt,
			ExpiresAt: doc.ExpiresAt,
		})
	}
	return entries, nil
}

func (s *CacheStore) Invalidate(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete partition: %w", err)
	}
	return nil
}

// Delete pulls ids from the partition document in one update and counts how
// many of them the document held just before.
func (s *CacheStore) Delete(ctx context.Context, key string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	update := bson.M{
		"$pull": bson.M{
			"listings": bson.M{"listing_id": bson.M{"$in": ids}},
		},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"listings.listing_id": 1})

	var before partitionDoc
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pull listings: %w", err)
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	removed := 0
	for _, l := range before.Listings {
		if _, ok := wanted[l.ID]; ok {
			removed++
		}
	}
	return removed, nil
}

func (s *CacheStore) Stats(ctx context.Context) (domain.CacheStats, error) {
	pipeline := []bson.M{
		{"$project": bson.M{
			"expires_at": 1,
			"count":      bson.M{"$size": bson.M{"$ifNull": bson.A{"$listings", bson.A{}}}},
		}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ExpiresAt time.Time `bson:"expires_at"`
		Count     int       `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return domain.CacheStats{}, fmt.Errorf("decode stats: %w", err)
	}

	now := s.now()
	var stats domain.CacheStats
	for _, r := range rows {
		stats.Partitions++
		if now.Before(r.ExpiresAt) {
			stats.ValidPartitions++
			stats.Listings += r.Count
		} else {
			stats.ExpiredPartitions++
		}
	}
	return stats, nil
}
