package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/danielcastano/rentora-backend/pkg/auth"
	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/outbox"
	"github.com/danielcastano/rentora-backend/pkg/outbox/payloads"
	"github.com/danielcastano/rentora-backend/pkg/pagination"

	"github.com/danielcastano/rentora-backend/internal/properties"
	"github.com/danielcastano/rentora-backend/internal/wallet"
)

// Service drives the booking lifecycle.
type Service interface {
	Create(ctx context.Context, params CreateParams, actor auth.Actor) (*models.Booking, error)
	Approve(ctx context.Context, bookingID uuid.UUID, params ApproveParams, actor auth.Actor) (*models.Booking, error)
	Reject(ctx context.Context, bookingID uuid.UUID, reason string, actor auth.Actor) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, params EndParams, actor auth.Actor) (*models.Booking, error)
	Terminate(ctx context.Context, bookingID uuid.UUID, params EndParams, actor auth.Actor) (*models.Booking, error)
	Get(ctx context.Context, bookingID uuid.UUID, actor auth.Actor) (*models.Booking, error)
	ListForTenant(ctx context.Context, params ListParams) (*ListResult, error)
	ListForOwner(ctx context.Context, params ListParams) (*ListResult, error)
	ListPendingApprovals(ctx context.Context, params ListParams) (*ListResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type scheduler interface {
	ScheduleFirstTx(ctx context.Context, tx *gorm.DB, booking *models.Booking, now time.Time) (*models.MonthlyObligation, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	db         txRunner
	repo       Repository
	properties properties.Repository
	wallet     wallet.Service
	scheduler  scheduler
	events     eventEmitter
	logg       *logger.Logger
	now        func() time.Time
}

// CreateParams is the tenant's booking request. EndDate nil means open-ended;
// MonthlyRent/SecurityDeposit nil means the property's listed terms apply.
type CreateParams struct {
	PropertyID      uuid.UUID
	StartDate       time.Time
	EndDate         *time.Time
	MonthlyRent     *decimal.Decimal
	SecurityDeposit *decimal.Decimal
	IdempotencyKey  string
}

// ApproveParams carries the owner's optional financial overrides.
type ApproveParams struct {
	MonthlyRent     *decimal.Decimal
	SecurityDeposit *decimal.Decimal
}

// EndParams configures cancellation/termination.
type EndParams struct {
	Reason        string
	RefundDeposit bool
}

// ListParams configures pagination for booking lists.
type ListParams struct {
	UserID uuid.UUID
	Status *enums.BookingStatus
	Limit  int
	Cursor string
}

// ListResult wraps returned bookings and the cursor for the next page.
type ListResult struct {
	Items  []models.Booking `json:"items"`
	Cursor string           `json:"cursor"`
}

// NewService wires booking dependencies.
func NewService(db txRunner, repo Repository, props properties.Repository, walletSvc wallet.Service, sched scheduler, events eventEmitter, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bookings tx runner required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bookings repository required")
	}
	if props == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "property repository required")
	}
	if walletSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet service required")
	}
	if sched == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "obligation scheduler required")
	}
	if events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "event emitter required")
	}
	return &service{
		db:         db,
		repo:       repo,
		properties: props,
		wallet:     walletSvc,
		scheduler:  sched,
		events:     events,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, params CreateParams, actor auth.Actor) (*models.Booking, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated actor required")
	}
	if params.PropertyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "property id required")
	}
	if params.StartDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start date required")
	}
	start := NormalizeDate(params.StartDate)
	var end *time.Time
	if params.EndDate != nil {
		normalized := NormalizeDate(*params.EndDate)
		if !normalized.After(start) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
		}
		end = &normalized
	}

	property, err := s.properties.FindByID(ctx, params.PropertyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading property")
	}
	if property == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "property not found")
	}
	if property.Status != enums.PropertyStatusForRent {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "property is not available for rent").
			WithDetails(map[string]any{"status": property.Status})
	}
	rent := property.MonthlyRent
	if params.MonthlyRent != nil {
		rent = *params.MonthlyRent
	}
	deposit := property.Deposit
	if params.SecurityDeposit != nil {
		deposit = *params.SecurityDeposit
	}
	if rent.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "monthly rent must be positive")
	}
	if deposit.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "security deposit must be positive")
	}
	if actor.UserID == property.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owners cannot book their own property")
	}

	// Cheap pre-check before touching money. The authoritative check runs
	// again under the property lock.
	existing, err := s.repo.ListBlockingForProperty(ctx, params.PropertyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing bookings")
	}
	if conflicting(existing, start, end) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "requested dates conflict with an existing booking")
	}

	debitKey := params.IdempotencyKey
	if debitKey == "" {
		debitKey = fmt.Sprintf("deposit_%s_%d", params.PropertyID, s.now().UnixNano())
	}
	debit, err := s.wallet.Debit(ctx, wallet.MovementParams{
		UserID:         actor.UserID,
		Amount:         deposit,
		Description:    fmt.Sprintf("security deposit for %s", property.Title),
		IdempotencyKey: debitKey,
	})
	if err != nil {
		return nil, err
	}
	if debit.Replayed {
		// The key already moved money for an earlier request; a replayed
		// entry cannot serve as this booking's escrow.
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key already used").
			WithDetails(map[string]any{"idempotency_key": debitKey})
	}
	if !debit.Applied {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance cannot cover the deposit").
			WithDetails(map[string]any{
				"required":  debit.Required.StringFixed(2),
				"available": debit.Available.StringFixed(2),
			})
	}

	booking := &models.Booking{
		ID:              uuid.New(),
		PropertyID:      property.ID,
		TenantID:        actor.UserID,
		Status:          enums.BookingStatusPendingApproval,
		MonthlyRent:     rent,
		SecurityDeposit: deposit,
		StartDate:       start,
		EndDate:         end,
	}

	txErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.properties.WithTx(tx).LockByID(ctx, property.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status != enums.PropertyStatusForRent {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "property is no longer available for rent")
		}

		repo := s.repo.WithTx(tx)
		blocking, err := repo.ListBlockingForProperty(ctx, property.ID)
		if err != nil {
			return err
		}
		if conflicting(blocking, start, end) {
			return pkgerrors.New(pkgerrors.CodeConflict, "requested dates conflict with an existing booking")
		}

		return repo.Create(ctx, booking)
	})
	if txErr != nil {
		// The deposit was already taken; hand it back before reporting.
		refundKey := fmt.Sprintf("deposit_refund_%s", debitKey)
		if _, refundErr := s.wallet.Credit(ctx, wallet.MovementParams{
			UserID:         actor.UserID,
			Amount:         deposit,
			Description:    "deposit refund after failed booking",
			IdempotencyKey: refundKey,
		}); refundErr != nil {
			return nil, multierr.Append(txErr, pkgerrors.Wrap(pkgerrors.CodeInternal, refundErr, "compensating deposit refund failed"))
		}
		if typed := pkgerrors.As(txErr); typed != nil {
			return nil, txErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "creating booking")
	}

	if s.logg != nil {
		logCtx := s.logg.WithBookingID(s.logg.WithPropertyID(ctx, property.ID.String()), booking.ID.String())
		s.logg.Info(logCtx, "booking requested")
	}
	return booking, nil
}

func conflicting(existing []models.Booking, start time.Time, end *time.Time) bool {
	for _, other := range existing {
		if Overlaps(start, end, other.StartDate, other.EndDate) {
			return true
		}
	}
	return false
}

func (s *service) Approve(ctx context.Context, bookingID uuid.UUID, params ApproveParams, actor auth.Actor) (*models.Booking, error) {
	booking, err := s.loadOwned(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPendingApproval {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending bookings can be approved").
			WithDetails(map[string]any{"status": booking.Status})
	}
	if params.MonthlyRent != nil && params.MonthlyRent.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "monthly rent override must be positive")
	}
	if params.SecurityDeposit != nil && params.SecurityDeposit.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "security deposit override must be positive")
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if params.MonthlyRent != nil {
			booking.MonthlyRent = *params.MonthlyRent
		}
		if params.SecurityDeposit != nil {
			booking.SecurityDeposit = *params.SecurityDeposit
		}
		booking.Status = enums.BookingStatusActive
		booking.ApprovedAt = &now
		if err := repo.Save(ctx, booking); err != nil {
			return err
		}

		if err := s.properties.WithTx(tx).UpdateStatus(ctx, booking.PropertyID, enums.PropertyStatusRented); err != nil {
			return err
		}

		if _, err := s.scheduler.ScheduleFirstTx(ctx, tx, booking, now); err != nil {
			return err
		}

		ownerID, err := s.properties.WithTx(tx).OwnerOf(ctx, booking.PropertyID)
		if err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingApproved,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.BookingApprovedEvent{
				BookingID:   booking.ID,
				PropertyID:  booking.PropertyID,
				TenantID:    booking.TenantID,
				OwnerID:     ownerID,
				MonthlyRent: booking.MonthlyRent.StringFixed(2),
				ApprovedAt:  now,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approving booking")
	}
	return booking, nil
}

func (s *service) Reject(ctx context.Context, bookingID uuid.UUID, reason string, actor auth.Actor) (*models.Booking, error) {
	booking, err := s.loadOwned(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPendingApproval {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending bookings can be rejected").
			WithDetails(map[string]any{"status": booking.Status})
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking.Status = enums.BookingStatusRejected
		if reason != "" {
			booking.RejectionReason = &reason
		}
		if err := repo.Save(ctx, booking); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingRejected,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.BookingRejectedEvent{
				BookingID:  booking.ID,
				PropertyID: booking.PropertyID,
				TenantID:   booking.TenantID,
				Reason:     reason,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rejecting booking")
	}
	return booking, nil
}

func (s *service) Cancel(ctx context.Context, bookingID uuid.UUID, params EndParams, actor auth.Actor) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParty(ctx, booking, actor); err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPendingApproval && booking.Status != enums.BookingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking cannot be cancelled in its current state").
			WithDetails(map[string]any{"status": booking.Status})
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking.Status = enums.BookingStatusCancelled
		if params.Reason != "" {
			booking.CancelReason = &params.Reason
		}
		booking.EndedAt = &now
		if err := repo.Save(ctx, booking); err != nil {
			return err
		}
		if err := s.properties.WithTx(tx).UpdateStatus(ctx, booking.PropertyID, enums.PropertyStatusForRent); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCancelled,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.BookingCancelledEvent{
				BookingID:   booking.ID,
				PropertyID:  booking.PropertyID,
				TenantID:    booking.TenantID,
				Reason:      params.Reason,
				Refunded:    params.RefundDeposit,
				CancelledAt: now,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancelling booking")
	}

	if params.RefundDeposit {
		if err := s.refundDeposit(ctx, booking, fmt.Sprintf("refund_%s", booking.ID), "deposit refund on cancellation"); err != nil {
			return nil, err
		}
	}
	return booking, nil
}

func (s *service) Terminate(ctx context.Context, bookingID uuid.UUID, params EndParams, actor auth.Actor) (*models.Booking, error) {
	booking, err := s.loadOwned(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only active bookings can be terminated").
			WithDetails(map[string]any{"status": booking.Status})
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking.Status = enums.BookingStatusTerminated
		if params.Reason != "" {
			booking.TerminationReason = &params.Reason
		}
		booking.EndedAt = &now
		if err := repo.Save(ctx, booking); err != nil {
			return err
		}
		if err := s.properties.WithTx(tx).UpdateStatus(ctx, booking.PropertyID, enums.PropertyStatusForRent); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingTerminated,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.BookingTerminatedEvent{
				BookingID:    booking.ID,
				PropertyID:   booking.PropertyID,
				TenantID:     booking.TenantID,
				Reason:       params.Reason,
				TerminatedAt: now,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "terminating booking")
	}

	if params.RefundDeposit {
		if err := s.refundDeposit(ctx, booking, fmt.Sprintf("terminate_refund_%s", booking.ID), "deposit refund on termination"); err != nil {
			return nil, err
		}
	}
	return booking, nil
}

const refundAttempts = 3

// refundDeposit hands the escrowed deposit back. The booking-scoped key means
// retries and double calls can only ever credit once. The booking is already
// ended when this runs, so a transient ledger failure is retried here rather
// than surfaced to a caller who cannot re-enter the ended booking.
func (s *service) refundDeposit(ctx context.Context, booking *models.Booking, key, description string) error {
	var err error
	for attempt := 1; attempt <= refundAttempts; attempt++ {
		_, err = s.wallet.Credit(ctx, wallet.MovementParams{
			UserID:         booking.TenantID,
			Amount:         booking.SecurityDeposit,
			Description:    description,
			IdempotencyKey: key,
		})
		if err == nil {
			return nil
		}
		if s.logg != nil {
			fields := map[string]any{
				"booking_id": booking.ID.String(),
				"key":        key,
				"attempt":    attempt,
			}
			s.logg.Warn(s.logg.WithFields(ctx, fields), "deposit refund attempt failed")
		}
	}
	return err
}

func (s *service) Get(ctx context.Context, bookingID uuid.UUID, actor auth.Actor) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParty(ctx, booking, actor); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) ListForTenant(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.list(ctx, params, s.repo.ListByTenant)
}

func (s *service) ListForOwner(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.list(ctx, params, s.repo.ListByOwner)
}

func (s *service) ListPendingApprovals(ctx context.Context, params ListParams) (*ListResult, error) {
	pending := enums.BookingStatusPendingApproval
	params.Status = &pending
	return s.list(ctx, params, s.repo.ListByOwner)
}

func (s *service) list(ctx context.Context, params ListParams, query func(context.Context, listBookingsParams) ([]models.Booking, *pagination.Cursor, error)) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	repoParams := listBookingsParams{UserID: params.UserID, Status: params.Status, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		repoParams.Cursor = cursor
	}

	rows, next, err := query(ctx, repoParams)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing bookings")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) load(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading booking")
	}
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return booking, nil
}

// loadOwned loads the booking and requires the actor to be the property owner
// or an admin.
func (s *service) loadOwned(ctx context.Context, bookingID uuid.UUID, actor auth.Actor) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return booking, nil
	}
	ownerID, err := s.properties.OwnerOf(ctx, booking.PropertyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving property owner")
	}
	if actor.UserID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the property owner may perform this action")
	}
	return booking, nil
}

// authorizeParty allows the tenant, the property owner, or an admin.
func (s *service) authorizeParty(ctx context.Context, booking *models.Booking, actor auth.Actor) error {
	if actor.IsAdmin() || actor.UserID == booking.TenantID {
		return nil
	}
	ownerID, err := s.properties.OwnerOf(ctx, booking.PropertyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving property owner")
	}
	if actor.UserID == ownerID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this booking")
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}
