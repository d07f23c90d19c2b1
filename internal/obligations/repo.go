package obligations

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

// Repository exposes persistence helpers for monthly obligations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, obligation *models.MonthlyObligation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MonthlyObligation, error)
	ExistsForBookingAndDue(ctx context.Context, bookingID uuid.UUID, dueDate time.Time) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time, reference string) (bool, error)
	ListForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.MonthlyObligation, error)
	ListPendingForTenant(ctx context.Context, params listObligationsParams) ([]models.MonthlyObligation, *pagination.Cursor, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an obligations repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listObligationsParams struct {
	TenantID uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Insert(ctx context.Context, obligation *models.MonthlyObligation) error {
	if obligation.ID == uuid.Nil {
		obligation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(obligation).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.MonthlyObligation, error) {
	var obligation models.MonthlyObligation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&obligation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &obligation, nil
}

func (r *repositoryImpl) ExistsForBookingAndDue(ctx context.Context, bookingID uuid.UUID, dueDate time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MonthlyObligation{}).
		Where("booking_id = ? AND due_date = ?", bookingID, dueDate).
		Count(&count).Error
	return count > 0, err
}

// MarkPaid flips a PENDING obligation to PAID. The status guard in the WHERE
// clause makes racing confirmations resolve to a single winner.
func (r *repositoryImpl) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time, reference string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.MonthlyObligation{}).
		Where("id = ? AND status = ?", id, enums.ObligationStatusPending).
		Updates(map[string]any{
			"status":            enums.ObligationStatusPaid,
			"paid_at":           paidAt,
			"payment_reference": reference,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.MonthlyObligation, error) {
	var rows []models.MonthlyObligation
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("due_date ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) ListPendingForTenant(ctx context.Context, params listObligationsParams) ([]models.MonthlyObligation, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.MonthlyObligation{}).
		Where("status = ?", enums.ObligationStatusPending).
		Where("booking_id IN (?)", r.db.Model(&models.Booking{}).Select("id").Where("tenant_id = ?", params.TenantID))
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.MonthlyObligation
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
