// Package companies persists the tenant aggregate and answers
// membership questions for the auth layer.
package companies

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"freight-cloud/internal/apperror"
)

const collectionName = "companies"

// Company is one tenant. The id arrays back-link documents owned by
// the tenant.
type Company struct {
	ID          bson.ObjectID   `bson:"_id,omitempty" json:"_id,omitempty"`
	Name        string          `bson:"name" json:"name"`
	Offers      []bson.ObjectID `bson:"offers" json:"offers"`
	Users       []bson.ObjectID `bson:"users" json:"users"`
	Permissions []bson.ObjectID `bson:"permissions" json:"permissions"`
}

// Store reads and mutates companies.
type Store struct {
	coll   *mongo.Collection
	logger *log.Logger
}

// NewStore constructs a Store.
func NewStore(db *mongo.Database, logger *log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("companies: nil database")
	}
	if logger == nil {
		return nil, errors.New("companies: nil logger")
	}
	return &Store{coll: db.Collection(collectionName), logger: logger}, nil
}

// Get loads one company by id.
func (s *Store) Get(ctx context.Context, id bson.ObjectID) (*Company, error) {
	var company Company
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindNotFound, "companies: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("companies: get: %w", err)
	}
	return &company, nil
}

// AddUser back-links a user into the company's user list.
func (s *Store) AddUser(ctx context.Context, companyID, userID bson.ObjectID) error {
	return s.push(ctx, companyID, "users", userID)
}

// AddOffer back-links an offer into the company's offer list.
func (s *Store) AddOffer(ctx context.Context, companyID, offerID bson.ObjectID) error {
	return s.push(ctx, companyID, "offers", offerID)
}

func (s *Store) push(ctx context.Context, companyID bson.ObjectID, field string, value bson.ObjectID) error {
	result, err := s.coll.UpdateByID(ctx, companyID,
		bson.M{"$addToSet": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("companies: push %s: %w", field, err)
	}
	if result.MatchedCount == 0 {
		return apperror.New(apperror.KindNotFound, "companies: not found")
	}
	return nil
}

// IsMember reports whether the user appears in the company's user
// list.
func (s *Store) IsMember(ctx context.Context, companyID, userID bson.ObjectID) (bool, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"_id": companyID, "users": userID})
	if err != nil {
		return false, fmt.Errorf("companies: membership check: %w", err)
	}
	return count > 0, nil
}
