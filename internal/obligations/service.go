package obligations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/danielcastano/rentora-backend/pkg/db"
	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/outbox"
	"github.com/danielcastano/rentora-backend/pkg/outbox/payloads"
	"github.com/danielcastano/rentora-backend/pkg/pagination"

	"github.com/danielcastano/rentora-backend/internal/wallet"
	"github.com/danielcastano/rentora-backend/pkg/auth"
)

// Service manages the monthly rent schedule and its settlement.
type Service interface {
	// ScheduleFirstTx creates the opening obligation for a freshly approved
	// booking inside the caller's transaction.
	ScheduleFirstTx(ctx context.Context, tx *gorm.DB, booking *models.Booking, now time.Time) (*models.MonthlyObligation, error)
	PayFromWallet(ctx context.Context, obligationID uuid.UUID, actor auth.Actor) (*models.MonthlyObligation, error)
	MarkPaidExternal(ctx context.Context, obligationID uuid.UUID, reference string, actor auth.Actor) (*models.MonthlyObligation, error)
	Get(ctx context.Context, obligationID uuid.UUID, actor auth.Actor) (*models.MonthlyObligation, error)
	ListForBooking(ctx context.Context, bookingID uuid.UUID, actor auth.Actor) ([]models.MonthlyObligation, error)
	ListPendingForTenant(ctx context.Context, params ListParams) (*ListResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type bookingFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

type ownerLookup interface {
	OwnerOf(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	db       txRunner
	repo     Repository
	bookings bookingFinder
	owners   ownerLookup
	wallet   wallet.Service
	events   eventEmitter
	logg     *logger.Logger
	now      func() time.Time
}

// ListParams configures pagination for pending obligations.
type ListParams struct {
	TenantID uuid.UUID
	Limit    int
	Cursor   string
}

// ListResult wraps returned obligations and the cursor for the next page.
type ListResult struct {
	Items  []models.MonthlyObligation `json:"items"`
	Cursor string                     `json:"cursor"`
}

// NewService wires obligation dependencies.
func NewService(db txRunner, repo Repository, bookings bookingFinder, owners ownerLookup, walletSvc wallet.Service, events eventEmitter, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "obligations tx runner required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "obligations repository required")
	}
	if bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "booking finder required")
	}
	if owners == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "owner lookup required")
	}
	if walletSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet service required")
	}
	if events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "event emitter required")
	}
	return &service{
		db:       db,
		repo:     repo,
		bookings: bookings,
		owners:   owners,
		wallet:   walletSvc,
		events:   events,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// firstOfMonth anchors a due date at UTC midnight on the first of the month.
func firstOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (s *service) ScheduleFirstTx(ctx context.Context, tx *gorm.DB, booking *models.Booking, now time.Time) (*models.MonthlyObligation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking required")
	}

	repo := s.repo.WithTx(tx)
	dueDate := firstOfMonth(now)

	exists, err := repo.ExistsForBookingAndDue(ctx, booking.ID, dueDate)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "opening obligation already scheduled")
	}

	obligation := &models.MonthlyObligation{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Amount:    booking.MonthlyRent,
		DueDate:   dueDate,
		Status:    enums.ObligationStatusPending,
	}
	if err := repo.Insert(ctx, obligation); err != nil {
		return nil, err
	}

	if err := s.emitRentDue(ctx, tx, obligation, booking.TenantID); err != nil {
		return nil, err
	}
	return obligation, nil
}

// advanceTx schedules the next month after a settled obligation. A concurrent
// confirmation may have created it already; both the existence check and the
// unique (booking_id, due_date) constraint collapse that into a no-op.
func (s *service) advanceTx(ctx context.Context, tx *gorm.DB, settled *models.MonthlyObligation, tenantID uuid.UUID) (*models.MonthlyObligation, error) {
	repo := s.repo.WithTx(tx)
	nextDue := settled.DueDate.AddDate(0, 1, 0)

	exists, err := repo.ExistsForBookingAndDue(ctx, settled.BookingID, nextDue)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	next := &models.MonthlyObligation{
		ID:        uuid.New(),
		BookingID: settled.BookingID,
		Amount:    settled.Amount,
		DueDate:   nextDue,
		Status:    enums.ObligationStatusPending,
	}
	if err := repo.Insert(ctx, next); err != nil {
		if dbpkg.IsUniqueViolation(err, "uq_obligations_booking_due") {
			return nil, nil
		}
		return nil, err
	}

	if err := s.emitRentDue(ctx, tx, next, tenantID); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *service) PayFromWallet(ctx context.Context, obligationID uuid.UUID, actor auth.Actor) (*models.MonthlyObligation, error) {
	obligation, booking, err := s.loadForSettlement(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.TenantID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the tenant may pay this obligation")
	}
	if obligation.Status != enums.ObligationStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "obligation is not pending").
			WithDetails(map[string]any{"status": obligation.Status})
	}

	debit, err := s.wallet.Debit(ctx, wallet.MovementParams{
		UserID:         booking.TenantID,
		Amount:         obligation.Amount,
		Description:    fmt.Sprintf("rent for %s", obligation.DueDate.Format("January 2006")),
		IdempotencyKey: fmt.Sprintf("obligation_%s", obligation.ID),
	})
	if err != nil {
		return nil, err
	}
	if !debit.Applied {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance cannot cover the rent").
			WithDetails(map[string]any{
				"required":  debit.Required.StringFixed(2),
				"available": debit.Available.StringFixed(2),
			})
	}

	reference := fmt.Sprintf("wallet_%s", booking.TenantID)
	return s.settle(ctx, obligation, booking, reference)
}

func (s *service) MarkPaidExternal(ctx context.Context, obligationID uuid.UUID, reference string, actor auth.Actor) (*models.MonthlyObligation, error) {
	obligation, booking, err := s.loadForSettlement(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.TenantID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the tenant may settle this obligation")
	}
	if obligation.Status != enums.ObligationStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "obligation is not pending").
			WithDetails(map[string]any{"status": obligation.Status})
	}
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	return s.settle(ctx, obligation, booking, reference)
}

// settle marks the obligation paid and schedules the next month in one
// transaction. Losing the status race is a STATE_CONFLICT, not corruption:
// the winner already advanced the schedule.
func (s *service) settle(ctx context.Context, obligation *models.MonthlyObligation, booking *models.Booking, reference string) (*models.MonthlyObligation, error) {
	now := s.now().UTC()
	var paid *models.MonthlyObligation

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		won, err := repo.MarkPaid(ctx, obligation.ID, now, reference)
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "obligation already settled")
		}

		updated, err := repo.FindByID(ctx, obligation.ID)
		if err != nil {
			return err
		}
		paid = updated

		if _, err := s.advanceTx(ctx, tx, updated, booking.TenantID); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRentPaid,
			AggregateType: enums.AggregateObligation,
			AggregateID:   obligation.ID,
			Version:       1,
			Data: payloads.RentPaidEvent{
				ObligationID:     obligation.ID,
				BookingID:        booking.ID,
				TenantID:         booking.TenantID,
				Amount:           obligation.Amount.StringFixed(2),
				PaymentReference: reference,
				PaidAt:           now,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settling obligation")
	}

	if s.logg != nil {
		fields := map[string]any{
			"obligation_id": obligation.ID.String(),
			"booking_id":    booking.ID.String(),
			"reference":     reference,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "obligation settled")
	}
	return paid, nil
}

func (s *service) Get(ctx context.Context, obligationID uuid.UUID, actor auth.Actor) (*models.MonthlyObligation, error) {
	obligation, booking, err := s.loadForSettlement(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, booking, actor); err != nil {
		return nil, err
	}
	return obligation, nil
}

func (s *service) ListForBooking(ctx context.Context, bookingID uuid.UUID, actor auth.Actor) ([]models.MonthlyObligation, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading booking")
	}
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	if err := s.authorizeRead(ctx, booking, actor); err != nil {
		return nil, err
	}
	return s.repo.ListForBooking(ctx, bookingID)
}

func (s *service) ListPendingForTenant(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}

	query := listObligationsParams{TenantID: params.TenantID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListPendingForTenant(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending obligations")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) loadForSettlement(ctx context.Context, obligationID uuid.UUID) (*models.MonthlyObligation, *models.Booking, error) {
	if obligationID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "obligation id required")
	}
	obligation, err := s.repo.FindByID(ctx, obligationID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading obligation")
	}
	if obligation == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "obligation not found")
	}
	booking, err := s.bookings.FindByID(ctx, obligation.BookingID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading booking")
	}
	if booking == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return obligation, booking, nil
}

func (s *service) authorizeRead(ctx context.Context, booking *models.Booking, actor auth.Actor) error {
	if actor.IsAdmin() || actor.UserID == booking.TenantID {
		return nil
	}
	ownerID, err := s.owners.OwnerOf(ctx, booking.PropertyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving property owner")
	}
	if actor.UserID == ownerID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this booking")
}

func (s *service) emitRentDue(ctx context.Context, tx *gorm.DB, obligation *models.MonthlyObligation, tenantID uuid.UUID) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRentDue,
		AggregateType: enums.AggregateObligation,
		AggregateID:   obligation.ID,
		Version:       1,
		Data: payloads.RentDueEvent{
			ObligationID: obligation.ID,
			BookingID:    obligation.BookingID,
			TenantID:     tenantID,
			Amount:       obligation.Amount.StringFixed(2),
			DueDate:      obligation.DueDate,
		},
	})
}
