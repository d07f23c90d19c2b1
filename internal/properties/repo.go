package properties

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
)

// Repository is the narrow property surface the booking lifecycle needs.
// Catalog management lives in a different service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Property, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Property, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PropertyStatus) error
	OwnerOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a property repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// LockByID loads the property under a row lock so concurrent booking writes
// against it serialize. sqlite has no row locks; its single-writer model
// covers the test workload.
func (r *repositoryImpl) LockByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(query, id)
}

func (r *repositoryImpl) find(query *gorm.DB, id uuid.UUID) (*models.Property, error) {
	var property models.Property
	err := query.Where("id = ?", id).First(&property).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &property, nil
}

func (r *repositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PropertyStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Property{}).
		Where("id = ?", id).
		UpdateColumn("status", status).Error
}

func (r *repositoryImpl) OwnerOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	property, err := r.FindByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if property == nil {
		return uuid.Nil, gorm.ErrRecordNotFound
	}
	return property.OwnerID, nil
}
