// Package mongo persists offers and serves the aggregated read side.
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
	"freight-cloud/internal/offers/domain"
	"freight-cloud/internal/query"
)

// ReferenceSeeder records the reference values used by an offer's line
// items so they become available as lookup data.
type ReferenceSeeder interface {
	SeedFromLineItems(ctx context.Context, items []domain.LineItem) error
}

// CompanyLinker back-links a created offer into its tenant's offer
// list.
type CompanyLinker interface {
	AddOffer(ctx context.Context, companyID, offerID bson.ObjectID) error
}

// View is one row of the combined offer view: the offer with USD
// totals and its matched price lists.
type View struct {
	domain.Offer    `bson:",inline"`
	TotalPrice20USD float64  `bson:"total_price_20_usd" json:"total_price_20_usd"`
	TotalPrice40USD float64  `bson:"total_price_40_usd" json:"total_price_40_usd"`
	PriceLists      []bson.M `bson:"priceLists" json:"priceLists"`
}

// Repository stores offers and reads them back through the views.
type Repository struct {
	offers   *mongo.Collection
	view     *mongo.Collection
	recorder *Recorder
	seeder   ReferenceSeeder
	linker   CompanyLinker
	logger   *log.Logger
}

// NewRepository constructs a Repository. seeder and linker may be nil.
func NewRepository(db *mongo.Database, recorder *Recorder, seeder ReferenceSeeder, linker CompanyLinker, logger *log.Logger) (*Repository, error) {
	if db == nil {
		return nil, errors.New("offers: nil database")
	}
	if recorder == nil {
		return nil, errors.New("offers: nil history recorder")
	}
	if logger == nil {
		return nil, errors.New("offers: nil logger")
	}
	return &Repository{
		offers:   db.Collection(query.CollectionOffers),
		view:     db.Collection(query.ViewOffersWithPriceLists),
		recorder: recorder,
		seeder:   seeder,
		linker:   linker,
		logger:   logger,
	}, nil
}

// Create prepares and inserts an offer, seeding reference data from its
// line items.
func (r *Repository) Create(ctx context.Context, offer *domain.Offer) error {
	if err := offer.Prepare(time.Now()); err != nil {
		return err
	}
	if offer.ID.IsZero() {
		offer.ID = bson.NewObjectID()
	}
	if r.seeder != nil {
		if err := r.seeder.SeedFromLineItems(ctx, offer.Details); err != nil {
			return err
		}
	}
	if _, err := r.offers.InsertOne(ctx, offer); err != nil {
		return fmt.Errorf("offers: insert: %w", err)
	}
	if r.linker != nil && !offer.Company.IsZero() {
		if err := r.linker.AddOffer(ctx, offer.Company, offer.ID); err != nil {
			r.logger.Printf("offers: company back-link: %v", err)
		}
	}
	return nil
}

// List runs a faceted build over the combined view. The view rows are
// already shaped, so the build starts from the empty variant.
func (r *Repository) List(ctx context.Context, params query.Params) (*query.Page[View], error) {
	pipeline, err := query.NewBuilder(params, query.VariantEmpty).
		Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		return nil, err
	}
	return aggregatePage[View](ctx, r.view, pipeline)
}

// Distinct returns the distinct values of a field among the company's
// offers.
func (r *Repository) Distinct(ctx context.Context, field string, companyID bson.ObjectID) ([]any, error) {
	result := r.offers.Distinct(ctx, field, bson.M{"company": companyID})
	var values []any
	if err := result.Decode(&values); err != nil {
		return nil, fmt.Errorf("offers: distinct %s: %w", field, err)
	}
	return values, nil
}

// Get loads one offer by id.
func (r *Repository) Get(ctx context.Context, id bson.ObjectID) (*domain.Offer, error) {
	var offer domain.Offer
	err := r.offers.FindOne(ctx, bson.M{"_id": id}).Decode(&offer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindNotFound, "offers: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("offers: get: %w", err)
	}
	return &offer, nil
}

// Update applies a field patch, snapshotting the previous state into
// the history collection first. Returns the pre-update offer.
func (r *Repository) Update(ctx context.Context, id bson.ObjectID, patch bson.M) (*domain.Offer, error) {
	if err := normalizePatch(patch); err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var previous domain.Offer
	err := r.offers.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": patch}, opts).Decode(&previous)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindNotFound, "offers: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("offers: update: %w", err)
	}

	historyID, err := r.recorder.Record(ctx, &previous)
	if err != nil {
		return nil, err
	}
	_, err = r.offers.UpdateByID(ctx, id, bson.M{"$push": bson.M{"update_history": historyID}})
	if err != nil {
		return nil, fmt.Errorf("offers: link history: %w", err)
	}
	return &previous, nil
}

// normalizePatch coerces a decoded JSON patch into the types the offer
// collection stores: validity bounds become UTC instants, a changed
// duration recomputes duration_sum, and a details payload is parsed and
// re-validated so a patch cannot bypass the line-item invariants.
func normalizePatch(patch bson.M) error {
	if len(patch) == 0 {
		return apperror.New(apperror.KindValidation, "offers: empty update")
	}
	for _, field := range []string{"valid_from", "valid_until"} {
		raw, ok := patch[field].(string)
		if !ok {
			continue
		}
		parsed, err := query.ParseDate(raw)
		if err != nil {
			return apperror.Wrap(apperror.KindValidation, "offers: invalid "+field, err)
		}
		patch[field] = parsed
	}
	from, fromOK := patch["valid_from"].(time.Time)
	until, untilOK := patch["valid_until"].(time.Time)
	if fromOK && untilOK && until.Before(from) {
		return apperror.New(apperror.KindValidation, "offers: valid_until precedes valid_from")
	}
	if duration, ok := patch["duration"].(string); ok {
		sum, err := domain.ParseDurationSum(duration)
		if err != nil {
			return err
		}
		patch["duration_sum"] = sum
	}
	if raw, ok := patch["details"]; ok {
		items, err := domain.ParseLineItems(raw)
		if err != nil {
			return err
		}
		patch["details"] = items
	}
	return nil
}

// Archive soft-deletes an offer.
func (r *Repository) Archive(ctx context.Context, id bson.ObjectID) error {
	return r.setActivity(ctx, id, domain.ActivityArchived)
}

// Restore brings an archived offer back.
func (r *Repository) Restore(ctx context.Context, id bson.ObjectID) error {
	return r.setActivity(ctx, id, domain.ActivityActive)
}

func (r *Repository) setActivity(ctx context.Context, id bson.ObjectID, activity domain.Activity) error {
	result, err := r.offers.UpdateByID(ctx, id, bson.M{"$set": bson.M{"activity": activity}})
	if err != nil {
		return fmt.Errorf("offers: set activity: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperror.New(apperror.KindNotFound, "offers: not found")
	}
	return nil
}

// ResolveCompany reports the owning company of an offer, for the
// company-ownership check.
func (r *Repository) ResolveCompany(ctx context.Context, resourceID string) (string, error) {
	id, err := bson.ObjectIDFromHex(resourceID)
	if err != nil {
		return "", apperror.Wrap(apperror.KindValidation, "offers: invalid id", err)
	}
	var doc struct {
		Company bson.ObjectID `bson:"company"`
	}
	err = r.offers.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"company": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("offers: resolve company: %w", err)
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
