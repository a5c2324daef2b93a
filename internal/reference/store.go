// Package reference maintains the lookup collections fed from offer
// line items: the known item lines and their per-container flags.
package reference

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"freight-cloud/internal/apperror"
	offers "freight-cloud/internal/offers/domain"
)

const (
	collectionItemLines = "item_lines"
	collectionPers      = "pers"
)

// Store seeds and reads the reference collections.
type Store struct {
	itemLines *mongo.Collection
	pers      *mongo.Collection
	logger    *log.Logger
}

// NewStore constructs a Store.
func NewStore(db *mongo.Database, logger *log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("reference: nil database")
	}
	if logger == nil {
		return nil, errors.New("reference: nil logger")
	}
	return &Store{
		itemLines: db.Collection(collectionItemLines),
		pers:      db.Collection(collectionPers),
		logger:    logger,
	}, nil
}

// EnsureIndexes creates the unique indexes the seeding race depends on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.itemLines.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("reference: item_lines index: %w", err)
	}
	_, err = s.pers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "item_line", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("reference: pers index: %w", err)
	}
	return nil
}

// SeedFromLineItems records every line item's name and per flag.
// Concurrent creates race on the unique index; the duplicate-key error
// is the benign outcome and is swallowed.
func (s *Store) SeedFromLineItems(ctx context.Context, items []offers.LineItem) error {
	for _, item := range items {
		if item.ItemLine == "" {
			continue
		}
		_, err := s.itemLines.InsertOne(ctx, bson.M{"name": item.ItemLine})
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("reference: seed item_line %s: %w", item.ItemLine, err)
		}
		_, err = s.pers.InsertOne(ctx, bson.M{"item_line": item.ItemLine, "per": item.Per})
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("reference: seed per %s: %w", item.ItemLine, err)
		}
	}
	return nil
}

// PerForItemLine reports whether an item line is priced per container.
func (s *Store) PerForItemLine(ctx context.Context, itemLine string) (bool, error) {
	var doc struct {
		Per bool `bson:"per"`
	}
	err := s.pers.FindOne(ctx, bson.M{"item_line": itemLine}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, apperror.New(apperror.KindNotFound, "reference: unknown item line "+itemLine)
	}
	if err != nil {
		return false, fmt.Errorf("reference: per lookup: %w", err)
	}
	return doc.Per, nil
}

// ItemLines returns every known item line name.
func (s *Store) ItemLines(ctx context.Context) ([]string, error) {
	result := s.itemLines.Distinct(ctx, "name", bson.M{})
	var names []string
	if err := result.Decode(&names); err != nil {
		return nil, fmt.Errorf("reference: item lines: %w", err)
	}
	return names, nil
}
