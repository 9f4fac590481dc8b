// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package mongostore implements auth.AccountRepository on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/wardenauth/warden/internal/auth"
)

// CollectionName is the collection accounts are stored in.
const CollectionName = "accounts"

// BootstrapCollectionName holds the marker claimed by the first super admin.
const BootstrapCollectionName = "bootstrap"

const superAdminMarker = "super_admin"

// accountDocument is the stored shape of an account. The ULID is kept in its
// text form as _id.
type accountDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	IsActive     bool      `bson:"is_active"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toDocument(a *auth.Account) accountDocument {
	return accountDocument{
		ID:           a.ID.String(),
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         string(a.Role),
		IsActive:     a.IsActive,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (d accountDocument) account() (*auth.Account, error) {
	id, err := ulid.Parse(d.ID)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", d.ID).Wrap(err)
	}
	role, err := auth.ParseRole(d.Role)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", d.ID).With("role", d.Role).Wrap(err)
	}
	return &auth.Account{
		ID:           id,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         role,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

// AccountRepository implements auth.AccountRepository using MongoDB.
type AccountRepository struct {
	coll    *mongo.Collection
	markers *mongo.Collection
}

// NewAccountRepository creates a repository over db's accounts collection.
func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{
		coll:    db.Collection(CollectionName),
		markers: db.Collection(BootstrapCollectionName),
	}
}

// EnsureIndexes creates the unique email index and the listing index.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("created_desc"),
		},
	})
	if err != nil {
		return oops.Code("ACCOUNT_INDEX_FAILED").With("collection", CollectionName).Wrap(err)
	}
	return nil
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.coll.InsertOne(ctx, toDocument(account))
	if mongo.IsDuplicateKeyError(err) {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("email", account.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// CreateFirstSuperAdmin inserts account only while no super admin exists.
// The caller that inserts the bootstrap marker owns the bootstrap; the
// marker's _id uniqueness rejects every concurrent caller.
func (r *AccountRepository) CreateFirstSuperAdmin(ctx context.Context, account *auth.Account) error {
	_, err := r.markers.InsertOne(ctx, bson.D{
		{Key: "_id", Value: superAdminMarker},
		{Key: "account_id", Value: account.ID.String()},
		{Key: "claimed_at", Value: account.CreatedAt.UTC()},
	})
	if mongo.IsDuplicateKeyError(err) {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "claim bootstrap").
			Wrap(auth.ErrSuperAdminExists)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "claim bootstrap").Wrap(err)
	}

	// Super admins created before the marker existed still close the bootstrap.
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "role", Value: string(auth.RoleSuperAdmin)}})
	if err != nil {
		r.releaseBootstrap(ctx)
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "check super admin").Wrap(err)
	}
	if n > 0 {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "check super admin").
			Wrap(auth.ErrSuperAdminExists)
	}

	if err := r.Create(ctx, account); err != nil {
		r.releaseBootstrap(ctx)
		return err
	}
	return nil
}

// releaseBootstrap gives the marker back after a failed bootstrap so a retry
// can claim it.
func (r *AccountRepository) releaseBootstrap(ctx context.Context) {
	_, _ = r.markers.DeleteOne(ctx, bson.D{{Key: "_id", Value: superAdminMarker}})
}

// FindByID retrieves an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}}, "id", id.String())
}

// FindByEmail retrieves an account by its normalized email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, "email", email)
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.D, key, value string) (*auth.Account, error) {
	var doc accountDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "find account").
			With(key, value).
			Wrap(err)
	}
	return doc.account()
}

// UpdateRole sets the role of an account.
func (r *AccountRepository) UpdateRole(ctx context.Context, id ulid.ULID, role auth.Role, at time.Time) error {
	return r.set(ctx, "update role", id, bson.D{{Key: "role", Value: string(role)}}, at)
}

// UpdateActiveStatus enables or disables an account.
func (r *AccountRepository) UpdateActiveStatus(ctx context.Context, id ulid.ULID, isActive bool, at time.Time) error {
	return r.set(ctx, "update active status", id, bson.D{{Key: "is_active", Value: isActive}}, at)
}

// UpdatePassword replaces the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, at time.Time) error {
	return r.set(ctx, "update password", id, bson.D{{Key: "password_hash", Value: passwordHash}}, at)
}

func (r *AccountRepository) set(ctx context.Context, op string, id ulid.ULID, fields bson.D, at time.Time) error {
	fields = append(fields, bson.E{Key: "updated_at", Value: at.UTC()})
	result, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: fields}},
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", op).
			With("id", id.String()).
			Wrap(err)
	}
	if result.MatchedCount == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ListFiltered returns one page of accounts, newest first, and the total
// number matching the filter.
func (r *AccountRepository) ListFiltered(ctx context.Context, filter auth.AccountFilter) ([]*auth.Account, int, error) {
	query := buildFilter(filter)

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "count accounts").Wrap(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "find accounts").Wrap(err)
	}

	var docs []accountDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "decode accounts").Wrap(err)
	}

	accounts := make([]*auth.Account, 0, len(docs))
	for _, doc := range docs {
		account, err := doc.account()
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, account)
	}
	return accounts, int(total), nil
}

// buildFilter translates an AccountFilter into a query document. The email
// prefix is matched literally.
func buildFilter(filter auth.AccountFilter) bson.D {
	query := bson.D{}
	if filter.Role != nil {
		query = append(query, bson.E{Key: "role", Value: string(*filter.Role)})
	}
	if filter.IsActive != nil {
		query = append(query, bson.E{Key: "is_active", Value: *filter.IsActive})
	}
	if filter.EmailPrefix != "" {
		query = append(query, bson.E{Key: "email", Value: bson.Regex{
			Pattern: "^" + regexp.QuoteMeta(filter.EmailPrefix),
		}})
	}
	return query
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
