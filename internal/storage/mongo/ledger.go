package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"auction_watcher/internal/domain"
)

type LedgerStore struct {
	arrivals *mongo.Collection
	urgent   *mongo.Collection
}

func NewLedgerStore(db *mongo.Database) *LedgerStore {
	return &LedgerStore{
		arrivals: db.Collection(arrivalsCollection),
		urgent:   db.Collection(urgentCollection),
	}
}

// TryRecord depends on the unique listing_id index created by EnsureIndexes.
func (s *LedgerStore) TryRecord(ctx context.Context, kind domain.LedgerKind, entry domain.LedgerEntry) (bool, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return false, err
	}

	if _, err := coll.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert %s: %w", coll.Name(), err)
	}
	return true, nil
}

func (s *LedgerStore) LoadIDs(ctx context.Context, kind domain.LedgerKind) ([]string, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"listing_id": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ListingID string `bson:"listing_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
		}
		ids = append(ids, doc.ListingID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", coll.Name(), err)
	}
	return ids, nil
}

func (s *LedgerStore) collection(kind domain.LedgerKind) (*mongo.Collection, error) {
	switch kind {
	case domain.LedgerArrival:
		return s.arrivals, nil
	case domain.LedgerUrgent:
		return s.urgent, nil
	default:
		return nil, fmt.Errorf("unknown ledger kind %q", kind)
	}
}
