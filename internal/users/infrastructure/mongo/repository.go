// Package mongo persists user accounts and invitations.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"freight-cloud/internal/apperror"
	"freight-cloud/internal/query"
	"freight-cloud/internal/users/domain"
)

// Repository stores users and invitations for one database.
type Repository struct {
	users       *mongo.Collection
	invitations *mongo.Collection
	logger      *log.Logger
}

// NewRepository constructs a Repository.
func NewRepository(db *mongo.Database, logger *log.Logger) (*Repository, error) {
	if db == nil {
		return nil, errors.New("users: nil database")
	}
	if logger == nil {
		return nil, errors.New("users: nil logger")
	}
	return &Repository{
		users:       db.Collection(query.CollectionUsers),
		invitations: db.Collection(query.CollectionInvitations),
		logger:      logger,
	}, nil
}

// EnsureIndexes creates the unique email index and the invitation
// expiry index.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users: email index: %w", err)
	}
	_, err = r.invitations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("users: invitation expiry index: %w", err)
	}
	return nil
}

// CreateUser inserts a new account. Duplicate emails map to a
// duplicate error.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Status == "" {
		user.Status = domain.StatusActive
	}
	_, err := r.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return apperror.New(apperror.KindDuplicate, "users: email already registered")
	}
	if err != nil {
		return fmt.Errorf("users: insert: %w", err)
	}
	return nil
}

// FindByEmail loads a user by email, case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindNotFound, "users: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("users: find by email: %w", err)
	}
	return &user, nil
}

// FindByID loads a user by id.
func (r *Repository) FindByID(ctx context.Context, id bson.ObjectID) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindNotFound, "users: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("users: find by id: %w", err)
	}
	return &user, nil
}

// FindByResetToken loads a user by a non-expired password reset token.
func (r *Repository) FindByResetToken(ctx context.Context, plainToken string) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, bson.M{
		"password_reset_token":   domain.HashToken(plainToken),
		"password_reset_expires": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindValidation, "users: reset token invalid or expired")
	}
	if err != nil {
		return nil, fmt.Errorf("users: find by reset token: %w", err)
	}
	return &user, nil
}

// SaveUser replaces a stored user.
func (r *Repository) SaveUser(ctx context.Context, user *domain.User) error {
	result, err := r.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		return fmt.Errorf("users: save: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperror.New(apperror.KindNotFound, "users: not found")
	}
	return nil
}

// UpdateUser applies a field patch to one account.
func (r *Repository) UpdateUser(ctx context.Context, id bson.ObjectID, patch bson.M) error {
	if len(patch) == 0 {
		return apperror.New(apperror.KindValidation, "users: empty update")
	}
	result, err := r.users.UpdateByID(ctx, id, bson.M{"$set": patch})
	if err != nil {
		return fmt.Errorf("users: update: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperror.New(apperror.KindNotFound, "users: not found")
	}
	return nil
}

// SetStatus activates or deactivates an account.
func (r *Repository) SetStatus(ctx context.Context, id bson.ObjectID, status domain.Status) error {
	return r.UpdateUser(ctx, id, bson.M{"status": status})
}

// List runs a faceted build over the users collection, scoped to the
// caller's company.
func (r *Repository) List(ctx context.Context, params query.Params) (*query.Page[domain.User], error) {
	pipeline, err := query.NewBuilder(params, query.VariantLogin).
		Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		return nil, err
	}
	return aggregatePage[domain.User](ctx, r.users, pipeline)
}

// Distinct returns the distinct values of a field among the company's
// users.
func (r *Repository) Distinct(ctx context.Context, field string, companyID bson.ObjectID) ([]any, error) {
	result := r.users.Distinct(ctx, field, bson.M{"company": companyID})
	var values []any
	if err := result.Decode(&values); err != nil {
		return nil, fmt.Errorf("users: distinct %s: %w", field, err)
	}
	return values, nil
}

// UpdateInvitation applies a field patch to one invitation.
func (r *Repository) UpdateInvitation(ctx context.Context, id bson.ObjectID, patch bson.M) error {
	if len(patch) == 0 {
		return apperror.New(apperror.KindValidation, "users: empty invitation update")
	}
	result, err := r.invitations.UpdateByID(ctx, id, bson.M{"$set": patch})
	if err != nil {
		return fmt.Errorf("users: update invitation: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperror.New(apperror.KindNotFound, "users: invitation not found")
	}
	return nil
}

// ResolveCompany reports the company a user belongs to, for the
// company-ownership check.
func (r *Repository) ResolveCompany(ctx context.Context, resourceID string) (string, error) {
	id, err := bson.ObjectIDFromHex(resourceID)
	if err != nil {
		return "", apperror.Wrap(apperror.KindValidation, "users: invalid id", err)
	}
	var doc struct {
		Company bson.ObjectID `bson:"company"`
	}
	err = r.users.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"company": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("users: resolve company: %w", err)
	}
	return doc.Company.Hex(), nil
}

// ReplaceInvitation upserts the pending invitation for an email
// address, so re-inviting refreshes the token instead of stacking
// duplicates.
func (r *Repository) ReplaceInvitation(ctx context.Context, inv *domain.Invitation) error {
	if inv.ID.IsZero() {
		inv.ID = bson.NewObjectID()
	}
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if _, err := r.invitations.DeleteMany(ctx, bson.M{"email": inv.Email}); err != nil {
		return fmt.Errorf("users: clear prior invitations: %w", err)
	}
	if _, err := r.invitations.InsertOne(ctx, inv); err != nil {
		return fmt.Errorf("users: insert invitation: %w", err)
	}
	return nil
}

// FindInvitationByToken loads a pending invitation by its plain token.
func (r *Repository) FindInvitationByToken(ctx context.Context, plainToken string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.invitations.FindOne(ctx, bson.M{"token_hash": domain.HashToken(plainToken)}).Decode(&inv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.New(apperror.KindValidation, "users: invitation invalid or expired")
	}
	if err != nil {
		return nil, fmt.Errorf("users: find invitation: %w", err)
	}
	if inv.Expired(time.Now().UTC()) {
		return nil, apperror.New(apperror.KindValidation, "users: invitation invalid or expired")
	}
	return &inv, nil
}

// DeleteInvitation removes one invitation, used both on acceptance and
// when the invitation mail could not be delivered.
func (r *Repository) DeleteInvitation(ctx context.Context, id bson.ObjectID) error {
	result, err := r.invitations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("users: delete invitation: %w", err)
	}
	if result.DeletedCount == 0 {
		return apperror.New(apperror.KindNotFound, "users: invitation not found")
	}
	return nil
}

// ListInvitations runs a faceted build over the invitations, joined to
// the sending user so company scoping applies.
func (r *Repository) ListInvitations(ctx context.Context, params query.Params) (*query.Page[bson.M], error) {
	pipeline, err := query.NewBuilder(params, query.VariantInvitations).
		Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		return nil, err
	}
	return aggregatePage[bson.M](ctx, r.invitations, pipeline)
}

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
