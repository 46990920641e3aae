package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/expensly/authclient/internal/core/domain"
)

const accountCollection = "accounts"

type AccountRepository struct {
	coll *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{coll: db.Collection(accountCollection)}
}

type mongoAccount struct {
	ID              string            `bson:"_id"`
	Email           string            `bson:"email"`
	FirstName       string            `bson:"first_name"`
	LastName        string            `bson:"last_name"`
	Role            string            `bson:"role"`
	CompanyID       string            `bson:"company_id"`
	IsEmailVerified bool              `bson:"is_email_verified"`
	IsActive        bool              `bson:"is_active"`
	LastLoginAt     int64             `bson:"last_login_at,omitempty"`
	CreatedAt       int64             `bson:"created_at"`
	UpdatedAt       int64             `bson:"updated_at"`
	PasswordHash    string            `bson:"password_hash"`
	MFASecret       string            `bson:"mfa_secret,omitempty"`
	MFAEnabled      bool              `bson:"mfa_enabled"`
	BackupCodes     []string          `bson:"backup_codes,omitempty"`
	External        map[string]string `bson:"external,omitempty"`
}

// EnsureIndexes creates the unique email index and the company lookup index.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "company_id", Value: 1}}},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) FindByExternal(ctx context.Context, provider domain.SSOProvider, subject string) (*domain.Account, error) {
	if subject == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"external." + string(provider): subject})
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, toMongoAccount(account)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return r.FindByID(ctx, account.User.ID)
}

func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": account.User.ID}, toMongoAccount(account))
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoAccount
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return fromMongoAccount(doc), nil
}

func toMongoAccount(a *domain.Account) mongoAccount {
	u := a.User
	doc := mongoAccount{
		ID:              u.ID,
		Email:           strings.ToLower(u.Email),
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Role:            string(u.Role),
		CompanyID:       u.CompanyID,
		IsEmailVerified: u.IsEmailVerified,
		IsActive:        u.IsActive,
		CreatedAt:       u.CreatedAt.Unix(),
		UpdatedAt:       u.UpdatedAt.Unix(),
		PasswordHash:    a.PasswordHash,
		MFASecret:       a.MFASecret,
		MFAEnabled:      a.MFAEnabled,
		BackupCodes:     a.BackupCodes,
	}
	if u.LastLoginAt != nil {
		doc.LastLoginAt = u.LastLoginAt.Unix()
	}
	if len(a.External) > 0 {
		doc.External = make(map[string]string, len(a.External))
		for p, sub := range a.External {
			doc.External[string(p)] = sub
		}
	}
	return doc
}

func fromMongoAccount(doc mongoAccount) *domain.Account {
	a := &domain.Account{
		User: domain.User{
			ID:              doc.ID,
			Email:           doc.Email,
			FirstName:       doc.FirstName,
			LastName:        doc.LastName,
			Role:            domain.Role(doc.Role),
			CompanyID:       doc.CompanyID,
			IsEmailVerified: doc.IsEmailVerified,
			IsActive:        doc.IsActive,
			CreatedAt:       unixToTime(doc.CreatedAt),
			UpdatedAt:       unixToTime(doc.UpdatedAt),
		},
		PasswordHash: doc.PasswordHash,
		MFASecret:    doc.MFASecret,
		MFAEnabled:   doc.MFAEnabled,
		BackupCodes:  doc.BackupCodes,
	}
	if doc.LastLoginAt != 0 {
		t := unixToTime(doc.LastLoginAt)
		a.User.LastLoginAt = &t
	}
	if len(doc.External) > 0 {
		a.External = make(map[domain.SSOProvider]string, len(doc.External))
		for p, sub := range doc.External {
			a.External[domain.SSOProvider(p)] = sub
		}
	}
	return a
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
