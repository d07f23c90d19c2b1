package bookings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
)

func setupBookingsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:bookingsrepo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Property{}, &models.Booking{}))
	return db
}

func seedBooking(t *testing.T, db *gorm.DB, propertyID, tenantID uuid.UUID, status enums.BookingStatus, createdAt time.Time) models.Booking {
	t.Helper()

	booking := models.Booking{
		ID:              uuid.New(),
		PropertyID:      propertyID,
		TenantID:        tenantID,
		Status:          status,
		MonthlyRent:     decimal.NewFromInt(1200),
		SecurityDeposit: decimal.NewFromInt(2400),
		StartDate:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:       createdAt,
	}
	require.NoError(t, db.Create(&booking).Error)
	return booking
}

func TestListBlockingForPropertyIgnoresEndedBookings(t *testing.T) {
	db := setupBookingsTestDB(t)
	repo := NewRepository(db)
	propertyID := uuid.New()
	now := time.Now().UTC()

	pending := seedBooking(t, db, propertyID, uuid.New(), enums.BookingStatusPendingApproval, now)
	active := seedBooking(t, db, propertyID, uuid.New(), enums.BookingStatusActive, now)
	seedBooking(t, db, propertyID, uuid.New(), enums.BookingStatusCancelled, now)
	seedBooking(t, db, uuid.New(), uuid.New(), enums.BookingStatusActive, now)

	rows, err := repo.ListBlockingForProperty(context.Background(), propertyID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	got := map[uuid.UUID]bool{rows[0].ID: true, rows[1].ID: true}
	assert.True(t, got[pending.ID])
	assert.True(t, got[active.ID])
}

func TestListByTenantPaginates(t *testing.T) {
	db := setupBookingsTestDB(t)
	repo := NewRepository(db)
	tenantID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var seeded []models.Booking
	for i := 0; i < 3; i++ {
		seeded = append(seeded, seedBooking(t, db, uuid.New(), tenantID, enums.BookingStatusActive, base.Add(time.Duration(i)*time.Hour)))
	}

	first, cursor, err := repo.ListByTenant(context.Background(), listBookingsParams{UserID: tenantID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	assert.Equal(t, seeded[2].ID, first[0].ID)
	assert.Equal(t, seeded[1].ID, first[1].ID)

	rest, next, err := repo.ListByTenant(context.Background(), listBookingsParams{UserID: tenantID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Nil(t, next)
	assert.Equal(t, seeded[0].ID, rest[0].ID)
}

func TestListPendingApprovalBefore(t *testing.T) {
	db := setupBookingsTestDB(t)
	repo := NewRepository(db)
	cutoff := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	stale := seedBooking(t, db, uuid.New(), uuid.New(), enums.BookingStatusPendingApproval, cutoff.Add(-48*time.Hour))
	seedBooking(t, db, uuid.New(), uuid.New(), enums.BookingStatusPendingApproval, cutoff.Add(time.Hour))
	seedBooking(t, db, uuid.New(), uuid.New(), enums.BookingStatusActive, cutoff.Add(-72*time.Hour))

	rows, err := repo.ListPendingApprovalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}
