package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	"github.com/danielcastano/rentora-backend/pkg/pagination"
)

// blockingStatuses are the booking states that hold a property's calendar.
var blockingStatuses = []enums.BookingStatus{
	enums.BookingStatusPendingApproval,
	enums.BookingStatusActive,
}

// Repository exposes persistence helpers for bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	Save(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListBlockingForProperty(ctx context.Context, propertyID uuid.UUID) ([]models.Booking, error)
	ListByTenant(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error)
	ListByOwner(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error)
	ListPendingApprovalBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a bookings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listBookingsParams struct {
	UserID uuid.UUID
	Status *enums.BookingStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repositoryImpl) Save(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Save(booking).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// ListBlockingForProperty returns the bookings that currently hold the
// property's calendar, regardless of dates.
func (r *repositoryImpl) ListBlockingForProperty(ctx context.Context, propertyID uuid.UUID) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("property_id = ? AND status IN ?", propertyID, blockingStatuses).
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) ListByTenant(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{}).Where("tenant_id = ?", params.UserID)
	return r.paginate(query, params)
}

// ListByOwner lists bookings against any property the owner holds.
func (r *repositoryImpl) ListByOwner(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("property_id IN (?)", r.db.Model(&models.Property{}).Select("id").Where("owner_id = ?", params.UserID))
	return r.paginate(query, params)
}

func (r *repositoryImpl) paginate(query *gorm.DB, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Booking
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

// ListPendingApprovalBefore returns bookings still awaiting a decision that
// were created before the cutoff.
func (r *repositoryImpl) ListPendingApprovalBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.BookingStatusPendingApproval, cutoff).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
