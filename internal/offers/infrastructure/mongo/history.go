package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"freight-cloud/internal/offers/domain"
	"freight-cloud/internal/query"
)

// Recorder snapshots offers into the history collection before they
// change. Snapshots are immutable; the offer keeps a back-reference
// list of its snapshot ids.
type Recorder struct {
	histories *mongo.Collection
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *mongo.Database) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("offers: nil database")
	}
	return &Recorder{histories: db.Collection(query.CollectionOfferHistories)}, nil
}

// Record stores a snapshot of the offer and returns the snapshot id.
// The snapshot is the offer document minus its own id, plus a main_id
// back-reference and a recording timestamp.
func (r *Recorder) Record(ctx context.Context, offer *domain.Offer) (bson.ObjectID, error) {
	raw, err := bson.Marshal(offer)
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("offers: marshal snapshot: %w", err)
	}
	var snapshot bson.M
	if err := bson.Unmarshal(raw, &snapshot); err != nil {
		return bson.ObjectID{}, fmt.Errorf("offers: unmarshal snapshot: %w", err)
	}
	// Everything but the id survives into the snapshot, including the
	// offer's own update_history list at the time of recording.
	delete(snapshot, "_id")
	snapshot["main_id"] = offer.ID
	snapshot["recorded_at"] = time.Now().UTC()

	result, err := r.histories.InsertOne(ctx, snapshot)
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("offers: insert snapshot: %w", err)
	}
	id, ok := result.InsertedID.(bson.ObjectID)
	if !ok {
		return bson.ObjectID{}, errors.New("offers: snapshot id has unexpected type")
	}
	return id, nil
}

// ListByOffer returns the snapshots of one offer, oldest first.
// Secret-flagged snapshots are excluded.
func (r *Recorder) ListByOffer(ctx context.Context, mainID bson.ObjectID) ([]bson.M, error) {
	filter := bson.M{
		"main_id":       mainID,
		"secret_status": bson.M{"$ne": true},
	}
	cursor, err := r.histories.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("offers: list history: %w", err)
	}
	defer cursor.Close(ctx)

	snapshots := []bson.M{}
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("offers: decode history: %w", err)
	}
	return snapshots, nil
}
