package currency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"freight-cloud/internal/apperror"
	"freight-cloud/internal/query"
)

const collectionHistory = "currency_history"

// Rate is one currency's rate against the snapshot base.
type Rate struct {
	CurrencyCode string  `bson:"currency_code" json:"currency_code"`
	Rate         float64 `bson:"rate" json:"rate"`
}

// Snapshot is the current rate set. The collection holds exactly one
// document; the views unwind its rates array.
type Snapshot struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Base      string        `bson:"base" json:"base"`
	Rates     []Rate        `bson:"rates" json:"rates"`
	FetchedAt time.Time     `bson:"fetched_at" json:"fetched_at"`
}

// Store persists the rate singleton and its history.
type Store struct {
	currencies *mongo.Collection
	history    *mongo.Collection
}

// NewStore constructs a Store.
func NewStore(db *mongo.Database) (*Store, error) {
	if db == nil {
		return nil, errors.New("currency: nil database")
	}
	return &Store{
		currencies: db.Collection(query.CollectionCurrencies),
		history:    db.Collection(collectionHistory),
	}, nil
}

// Replace swaps the current snapshot and appends it to the history.
// Readers between the delete and the insert see no snapshot; the view
// lookups then find no rate and skip the row, which matches how a
// missing currency code behaves.
func (s *Store) Replace(ctx context.Context, snapshot Snapshot) error {
	if len(snapshot.Rates) == 0 {
		return apperror.New(apperror.KindValidation, "currency: empty snapshot")
	}
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = time.Now().UTC()
	}
	snapshot.ID = bson.NewObjectID()

	if _, err := s.currencies.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("currency: clear snapshot: %w", err)
	}
	if _, err := s.currencies.InsertOne(ctx, snapshot); err != nil {
		return fmt.Errorf("currency: insert snapshot: %w", err)
	}

	snapshot.ID = bson.NewObjectID()
	if _, err := s.history.InsertOne(ctx, snapshot); err != nil {
		return fmt.Errorf("currency: insert history: %w", err)
	}
	return nil
}

// Current returns the active snapshot.
func (s *Store) Current(ctx context.Context) (*Snapshot, error) {
	var snapshot Snapshot
	err := s.currencies.FindOne(ctx, bson.M{}).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindNotFound, "currency: no snapshot")
	}
	if err != nil {
		return nil, fmt.Errorf("currency: current snapshot: %w", err)
	}
	return &snapshot, nil
}

// SnapshotFromRates shapes a rate map into a stored snapshot with a
// stable rate order.
func SnapshotFromRates(base string, rates map[string]float64, fetchedAt time.Time) Snapshot {
	codes := make([]string, 0, len(rates))
	for code := range rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	shaped := make([]Rate, 0, len(codes))
	for _, code := range codes {
		shaped = append(shaped, Rate{CurrencyCode: code, Rate: rates[code]})
	}
	return Snapshot{Base: base, Rates: shaped, FetchedAt: fetchedAt.UTC()}
}
