// Package mongo persists price lists and serves their aggregated reads.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"freight-cloud/internal/apperror"
	offers "freight-cloud/internal/offers/domain"
	"freight-cloud/internal/pricelists/domain"
	"freight-cloud/internal/query"
)

// View is one row of the normalized price-list view.
type View struct {
	domain.PriceList `bson:",inline"`
	TotalPrice20USD  float64 `bson:"total_price_20_usd" json:"total_price_20_usd"`
	TotalPrice40USD  float64 `bson:"total_price_40_usd" json:"total_price_40_usd"`
}

// FreeInterval is one uncovered date range of a category. A nil
// ValidUntil means the gap is open-ended.
type FreeInterval struct {
	ValidFrom  time.Time  `bson:"valid_from" json:"valid_from"`
	ValidUntil *time.Time `bson:"valid_until" json:"valid_until"`
}

// CategoryGaps is the free-interval result for one category.
type CategoryGaps struct {
	Category      domain.Category `bson:"category" json:"category"`
	FreeIntervals []FreeInterval  `bson:"freeIntervals" json:"freeIntervals"`
}

// Repository stores price lists.
type Repository struct {
	lists  *mongo.Collection
	view   *mongo.Collection
	logger *log.Logger
}

// NewRepository constructs a Repository.
func NewRepository(db *mongo.Database, logger *log.Logger) (*Repository, error) {
	if db == nil {
		return nil, errors.New("pricelists: nil database")
	}
	if logger == nil {
		return nil, errors.New("pricelists: nil logger")
	}
	return &Repository{
		lists:  db.Collection(query.CollectionPriceLists),
		view:   db.Collection(query.ViewPriceListCurrency),
		logger: logger,
	}, nil
}

// Create inserts a price list after the overlap guard passes.
func (r *Repository) Create(ctx context.Context, list *domain.PriceList) error {
	if err := list.Prepare(time.Now()); err != nil {
		return err
	}
	if list.ID.IsZero() {
		list.ID = bson.NewObjectID()
	}
	if err := r.ensureNoOverlap(ctx, list, bson.ObjectID{}); err != nil {
		return err
	}
	if _, err := r.lists.InsertOne(ctx, list); err != nil {
		return fmt.Errorf("pricelists: insert: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of a price list, re-running the
// overlap guard with the document itself excluded.
func (r *Repository) Update(ctx context.Context, id bson.ObjectID, list *domain.PriceList) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	list.ID = id
	list.Company = current.Company
	list.CreatedAt = current.CreatedAt
	list.SenderInformation = current.SenderInformation
	if err := list.Prepare(time.Now()); err != nil {
		return err
	}
	if err := r.ensureNoOverlap(ctx, list, id); err != nil {
		return err
	}
	if _, err := r.lists.ReplaceOne(ctx, bson.M{"_id": id}, list); err != nil {
		return fmt.Errorf("pricelists: update: %w", err)
	}
	return nil
}

// ensureNoOverlap rejects a price list whose validity interval overlaps
// an existing one in the same matching scope. exclude skips the
// document being updated.
func (r *Repository) ensureNoOverlap(ctx context.Context, list *domain.PriceList, exclude bson.ObjectID) error {
	filter := list.ScopeFilter()
	filter["activity"] = offers.ActivityActive
	filter["valid_from"] = bson.M{"$lte": list.ValidUntil}
	filter["valid_until"] = bson.M{"$gte": list.ValidFrom}
	if !exclude.IsZero() {
		filter["_id"] = bson.M{"$ne": exclude}
	}

	err := r.lists.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == nil {
		return apperror.New(apperror.KindConflict, "pricelists: overlapping validity interval in scope")
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return fmt.Errorf("pricelists: overlap check: %w", err)
}

// List runs a faceted build over the normalized view.
func (r *Repository) List(ctx context.Context, params query.Params) (*query.Page[View], error) {
	pipeline, err := query.NewBuilder(params, query.VariantEmpty).
		Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		return nil, err
	}
	return aggregatePage[View](ctx, r.view, pipeline)
}

// FreeIntervals computes per-category coverage gaps over the matching
// filter.
func (r *Repository) FreeIntervals(ctx context.Context, params query.Params) ([]CategoryGaps, error) {
	pipeline, err := query.NewBuilder(params, query.VariantFreeIntervals).FreeIntervals()
	if err != nil {
		return nil, err
	}
	cursor, err := r.lists.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("pricelists: free intervals: %w", err)
	}
	defer cursor.Close(ctx)

	gaps := []CategoryGaps{}
	if err := cursor.All(ctx, &gaps); err != nil {
		return nil, fmt.Errorf("pricelists: decode free intervals: %w", err)
	}
	return gaps, nil
}

// Distinct returns the distinct values of a field among the company's
// price lists.
func (r *Repository) Distinct(ctx context.Context, field string, companyID bson.ObjectID) ([]any, error) {
	result := r.lists.Distinct(ctx, field, bson.M{"company": companyID})
	var values []any
	if err := result.Decode(&values); err != nil {
		return nil, fmt.Errorf("pricelists: distinct %s: %w", field, err)
	}
	return values, nil
}

// Get loads one price list by id.
func (r *Repository) Get(ctx context.Context, id bson.ObjectID) (*domain.PriceList, error) {
	var list domain.PriceList
	err := r.lists.FindOne(ctx, bson.M{"_id": id}).Decode(&list)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindNotFound, "pricelists: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("pricelists: get: %w", err)
	}
	return &list, nil
}

// Archive soft-deletes a price list.
func (r *Repository) Archive(ctx context.Context, id bson.ObjectID) error {
	return r.setActivity(ctx, id, offers.ActivityArchived)
}

// Restore brings an archived price list back.
func (r *Repository) Restore(ctx context.Context, id bson.ObjectID) error {
	return r.setActivity(ctx, id, offers.ActivityActive)
}

func (r *Repository) setActivity(ctx context.Context, id bson.ObjectID, activity offers.Activity) error {
	result, err := r.lists.UpdateByID(ctx, id, bson.M{"$set": bson.M{"activity": activity}})
	if err != nil {
		return fmt.Errorf("pricelists: set activity: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperror.New(apperror.KindNotFound, "pricelists: not found")
	}
	return nil
}

// ResolveCompany reports the owning company of a price list.
func (r *Repository) ResolveCompany(ctx context.Context, resourceID string) (string, error) {
	id, err := bson.ObjectIDFromHex(resourceID)
	if err != nil {
		return "", apperror.Wrap(apperror.KindValidation, "pricelists: invalid id", err)
	}
	var doc struct {
		Company bson.ObjectID `bson:"company"`
	}
	err = r.lists.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"company": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pricelists: resolve company: %w", err)
	}
	return doc.Company.Hex(), nil
}

// aggregatePage runs a faceted pipeline and decodes its single result
// document.
func aggregatePage[T any](ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) (*query.Page[T], error) {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	page := &query.Page[T]{Data: []T{}}
	if cursor.Next(ctx) {
		if err := cursor.Decode(page); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", coll.Name(), err)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", coll.Name(), err)
	}
	if page.Data == nil {
		page.Data = []T{}
	}
	return page, nil
}
