package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/expensly/authclient/internal/core/domain"
)

const companyCollection = "companies"

type CompanyRepository struct {
	coll *mongo.Collection
}

func NewCompanyRepository(db *mongo.Database) *CompanyRepository {
	return &CompanyRepository{coll: db.Collection(companyCollection)}
}

type mongoCompany struct {
	ID        string                 `bson:"_id"`
	Name      string                 `bson:"name"`
	Domain    string                 `bson:"domain,omitempty"`
	Industry  string                 `bson:"industry,omitempty"`
	Size      int                    `bson:"size,omitempty"`
	Address   *domain.Address        `bson:"address,omitempty"`
	Settings  domain.CompanySettings `bson:"settings"`
	CreatedAt int64                  `bson:"created_at"`
	UpdatedAt int64                  `bson:"updated_at"`
}

// EnsureIndexes indexes the email domain used to resolve self-registration.
func (r *CompanyRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "domain", Value: 1}},
		Options: options.Index().SetSparse(true),
	})
	return err
}

func (r *CompanyRepository) FindByID(ctx context.Context, id string) (*domain.Company, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *CompanyRepository) FindByDomain(ctx context.Context, domainName string) (*domain.Company, error) {
	return r.findOne(ctx, bson.M{"domain": domainName})
}

func (r *CompanyRepository) Create(ctx context.Context, c *domain.Company) (*domain.Company, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoCompany{
		ID:        c.ID,
		Name:      c.Name,
		Domain:    c.Domain,
		Industry:  c.Industry,
		Size:      c.Size,
		Address:   c.Address,
		Settings:  c.Settings,
		CreatedAt: c.CreatedAt.Unix(),
		UpdatedAt: c.UpdatedAt.Unix(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert company: %w", err)
	}
	return r.FindByID(ctx, c.ID)
}

func (r *CompanyRepository) findOne(ctx context.Context, filter bson.M) (*domain.Company, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoCompany
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("find company: %w", err)
	}
	return &domain.Company{
		ID:        doc.ID,
		Name:      doc.Name,
		Domain:    doc.Domain,
		Industry:  doc.Industry,
		Size:      doc.Size,
		Address:   doc.Address,
		Settings:  doc.Settings,
		CreatedAt: unixToTime(doc.CreatedAt),
		UpdatedAt: unixToTime(doc.UpdatedAt),
	}, nil
}
