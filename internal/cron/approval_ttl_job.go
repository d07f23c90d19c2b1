package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/danielcastano/rentora-backend/internal/bookings"
	"github.com/danielcastano/rentora-backend/pkg/auth"
	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	"github.com/danielcastano/rentora-backend/pkg/logger"
)

const approvalExpirationDays = 7

// ApprovalTTLJobParams configure the stale booking scheduler.
type ApprovalTTLJobParams struct {
	Logger     *logger.Logger
	Reader     staleBookingReader
	Bookings   bookingCanceller
	Expiration int
}

type staleBookingReader interface {
	ListPendingApprovalBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
}

type bookingCanceller interface {
	Cancel(ctx context.Context, bookingID uuid.UUID, params bookings.EndParams, actor auth.Actor) (*models.Booking, error)
}

// NewApprovalTTLJob builds the cron job that cancels bookings whose approval
// window lapsed and returns the escrowed deposit to the tenant.
func NewApprovalTTLJob(params ApprovalTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("booking reader required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings service required")
	}
	expiration := params.Expiration
	if expiration <= 0 {
		expiration = approvalExpirationDays
	}
	return &approvalTTLJob{
		logg:       params.Logger,
		reader:     params.Reader,
		bookings:   params.Bookings,
		expiration: expiration,
		now:        time.Now,
	}, nil
}

type approvalTTLJob struct {
	logg       *logger.Logger
	reader     staleBookingReader
	bookings   bookingCanceller
	expiration int
	now        func() time.Time
}

func (j *approvalTTLJob) Name() string { return "booking-approval-ttl" }

func (j *approvalTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.expiration) * 24 * time.Hour)
	stale, err := j.reader.ListPendingApprovalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale pending bookings: %w", err)
	}

	actor := auth.Actor{Role: enums.UserRoleAdmin}
	count := 0
	var errs []error
	for _, booking := range stale {
		_, err := j.bookings.Cancel(ctx, booking.ID, bookings.EndParams{
			Reason:        "approval window expired",
			RefundDeposit: true,
		}, actor)
		if err != nil {
			errs = append(errs, fmt.Errorf("cancel booking %s: %w", booking.ID, err))
			continue
		}
		count++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"expiration_days": j.expiration,
		"cancelled":       count,
	})
	j.logg.Info(logCtx, "booking approval ttl loop complete")
	return multierr.Combine(errs...)
}
