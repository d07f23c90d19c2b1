package bookings

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/danielcastano/rentora-backend/pkg/auth"
	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/outbox"

	"github.com/danielcastano/rentora-backend/internal/obligations"
	"github.com/danielcastano/rentora-backend/internal/properties"
	"github.com/danielcastano/rentora-backend/internal/wallet"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

var frozenNow = time.Date(2026, time.March, 12, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	svc      Service
	wallet   wallet.Service
	tenant   uuid.UUID
	owner    uuid.UUID
	property *models.Property
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:bookings_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Property{},
		&models.Booking{},
		&models.MonthlyObligation{},
		&models.WalletAccount{},
		&models.LedgerEntry{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	runner := &gormTxRunner{db: db}
	propsRepo := properties.NewRepository(db)
	bookingsRepo := NewRepository(db)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	walletSvc, err := wallet.NewService(runner, wallet.NewRepository(db), nil)
	if err != nil {
		t.Fatalf("wallet service: %v", err)
	}
	obligationsSvc, err := obligations.NewService(runner, obligations.NewRepository(db), bookingsRepo, propsRepo, walletSvc, outboxSvc, nil)
	if err != nil {
		t.Fatalf("obligations service: %v", err)
	}
	svc, err := NewService(runner, bookingsRepo, propsRepo, walletSvc, obligationsSvc, outboxSvc, nil)
	if err != nil {
		t.Fatalf("bookings service: %v", err)
	}
	svc.(*service).now = func() time.Time { return frozenNow }

	f := &fixture{db: db, svc: svc, wallet: walletSvc, tenant: uuid.New(), owner: uuid.New()}
	f.property = &models.Property{
		ID:          uuid.New(),
		OwnerID:     f.owner,
		Title:       "Studio on Elm Street",
		Address:     "221 Elm Street",
		Status:      enums.PropertyStatusForRent,
		MonthlyRent: decimal.NewFromInt(1200),
		Deposit:     decimal.NewFromInt(2400),
	}
	if err := db.Create(f.property).Error; err != nil {
		t.Fatalf("seed property: %v", err)
	}
	return f
}

func (f *fixture) fund(t *testing.T, userID uuid.UUID, amount int64) {
	t.Helper()
	result, err := f.wallet.Credit(context.Background(), wallet.MovementParams{
		UserID:         userID,
		Amount:         decimal.NewFromInt(amount),
		Description:    "top-up",
		IdempotencyKey: "topup_" + uuid.NewString(),
	})
	if err != nil || !result.Applied {
		t.Fatalf("fund wallet: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	balance, err := f.wallet.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (f *fixture) tenantActor() auth.Actor {
	return auth.Actor{UserID: f.tenant, Role: enums.UserRoleUser}
}

func (f *fixture) ownerActor() auth.Actor {
	return auth.Actor{UserID: f.owner, Role: enums.UserRoleAgent}
}

func (f *fixture) createBooking(t *testing.T) *models.Booking {
	t.Helper()
	f.fund(t, f.tenant, 10000)
	booking, err := f.svc.Create(context.Background(), CreateParams{
		PropertyID:     f.property.ID,
		StartDate:      time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		IdempotencyKey: "deposit_" + uuid.NewString(),
	}, f.tenantActor())
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return booking
}

func (f *fixture) propertyStatus(t *testing.T) enums.PropertyStatus {
	t.Helper()
	var p models.Property
	if err := f.db.First(&p, "id = ?", f.property.ID).Error; err != nil {
		t.Fatalf("reload property: %v", err)
	}
	return p.Status
}

func errCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	return typed.Code()
}

func TestCreateEscrowsDeposit(t *testing.T) {
	f := newFixture(t)

	booking := f.createBooking(t)

	if booking.Status != enums.BookingStatusPendingApproval {
		t.Fatalf("status %s, want PENDING_APPROVAL", booking.Status)
	}
	if !booking.MonthlyRent.Equal(f.property.MonthlyRent) {
		t.Fatalf("rent %s, want property rent %s", booking.MonthlyRent, f.property.MonthlyRent)
	}
	if !booking.SecurityDeposit.Equal(f.property.Deposit) {
		t.Fatalf("deposit %s, want property deposit %s", booking.SecurityDeposit, f.property.Deposit)
	}
	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(7600)) {
		t.Fatalf("deposit not escrowed, balance=%s", got)
	}
}

func TestCreateInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.tenant, 1000)

	_, err := f.svc.Create(context.Background(), CreateParams{
		PropertyID: f.property.ID,
		StartDate:  time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
	}, f.tenantActor())
	if errCode(t, err) != pkgerrors.CodeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}

	var count int64
	if err := f.db.Model(&models.Booking{}).Count(&count).Error; err != nil {
		t.Fatalf("count bookings: %v", err)
	}
	if count != 0 {
		t.Fatalf("declined booking must not persist, found %d rows", count)
	}
	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("declined booking must not move money, balance=%s", got)
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.createBooking(t)

	other := uuid.New()
	f.fund(t, other, 10000)
	before := f.balance(t, other)

	end := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.Create(context.Background(), CreateParams{
		PropertyID: f.property.ID,
		StartDate:  time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC),
		EndDate:    &end,
	}, auth.Actor{UserID: other, Role: enums.UserRoleUser})
	if errCode(t, err) != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT for shared boundary day, got %v", err)
	}
	if got := f.balance(t, other); !got.Equal(before) {
		t.Fatalf("conflicting request must not touch the wallet, balance=%s", got)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC)
	badEnd := start.AddDate(0, 0, -3)
	zero := decimal.Zero

	cases := []struct {
		name   string
		params CreateParams
		actor  auth.Actor
		code   pkgerrors.Code
	}{
		{"missing property", CreateParams{StartDate: start}, f.tenantActor(), pkgerrors.CodeValidation},
		{"missing start", CreateParams{PropertyID: f.property.ID}, f.tenantActor(), pkgerrors.CodeValidation},
		{"end before start", CreateParams{PropertyID: f.property.ID, StartDate: start, EndDate: &badEnd}, f.tenantActor(), pkgerrors.CodeValidation},
		{"end equals start", CreateParams{PropertyID: f.property.ID, StartDate: start, EndDate: &start}, f.tenantActor(), pkgerrors.CodeValidation},
		{"zero rent", CreateParams{PropertyID: f.property.ID, StartDate: start, MonthlyRent: &zero}, f.tenantActor(), pkgerrors.CodeValidation},
		{"zero deposit", CreateParams{PropertyID: f.property.ID, StartDate: start, SecurityDeposit: &zero}, f.tenantActor(), pkgerrors.CodeValidation},
		{"own property", CreateParams{PropertyID: f.property.ID, StartDate: start}, f.ownerActor(), pkgerrors.CodeValidation},
		{"unknown property", CreateParams{PropertyID: uuid.New(), StartDate: start}, f.tenantActor(), pkgerrors.CodeNotFound},
		{"anonymous", CreateParams{PropertyID: f.property.ID, StartDate: start}, auth.Actor{}, pkgerrors.CodeUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.params, tc.actor)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errCode(t, err); got != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestCreateRequiresAvailableProperty(t *testing.T) {
	f := newFixture(t)
	if err := f.db.Model(&models.Property{}).Where("id = ?", f.property.ID).
		UpdateColumn("status", enums.PropertyStatusRented).Error; err != nil {
		t.Fatalf("update property: %v", err)
	}

	_, err := f.svc.Create(context.Background(), CreateParams{
		PropertyID: f.property.ID,
		StartDate:  time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
	}, f.tenantActor())
	if errCode(t, err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestApproveActivatesAndSchedulesRent(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)

	approved, err := f.svc.Approve(context.Background(), booking.ID, ApproveParams{}, f.ownerActor())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != enums.BookingStatusActive {
		t.Fatalf("status %s, want ACTIVE", approved.Status)
	}
	if approved.ApprovedAt == nil {
		t.Fatal("approved_at not set")
	}
	if f.propertyStatus(t) != enums.PropertyStatusRented {
		t.Fatal("property must flip to RENTED on approval")
	}

	var obligation models.MonthlyObligation
	if err := f.db.First(&obligation, "booking_id = ?", booking.ID).Error; err != nil {
		t.Fatalf("first obligation missing: %v", err)
	}
	wantDue := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !obligation.DueDate.Equal(wantDue) {
		t.Fatalf("due date %s, want %s", obligation.DueDate, wantDue)
	}
	if !obligation.Amount.Equal(approved.MonthlyRent) {
		t.Fatalf("obligation amount %s, want %s", obligation.Amount, approved.MonthlyRent)
	}

	var events int64
	if err := f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventBookingApproved).Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected one approval event, got %d", events)
	}
}

func TestApproveAppliesOverrides(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)

	rent := decimal.NewFromInt(1350)
	deposit := decimal.NewFromInt(2700)
	approved, err := f.svc.Approve(context.Background(), booking.ID, ApproveParams{
		MonthlyRent:     &rent,
		SecurityDeposit: &deposit,
	}, f.ownerActor())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.MonthlyRent.Equal(rent) || !approved.SecurityDeposit.Equal(deposit) {
		t.Fatalf("overrides not applied: rent=%s deposit=%s", approved.MonthlyRent, approved.SecurityDeposit)
	}

	var obligation models.MonthlyObligation
	if err := f.db.First(&obligation, "booking_id = ?", booking.ID).Error; err != nil {
		t.Fatalf("first obligation missing: %v", err)
	}
	if !obligation.Amount.Equal(rent) {
		t.Fatalf("obligation must use the overridden rent, got %s", obligation.Amount)
	}
}

func TestApproveAuthorization(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, booking.ID, ApproveParams{}, f.tenantActor())
	if errCode(t, err) != pkgerrors.CodeForbidden {
		t.Fatalf("tenant must not approve, got %v", err)
	}

	if _, err := f.svc.Approve(ctx, booking.ID, ApproveParams{}, f.ownerActor()); err != nil {
		t.Fatalf("owner approve: %v", err)
	}
	_, err = f.svc.Approve(ctx, booking.ID, ApproveParams{}, f.ownerActor())
	if errCode(t, err) != pkgerrors.CodeStateConflict {
		t.Fatalf("double approve must fail, got %v", err)
	}
}

func TestRejectKeepsDeposit(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)
	before := f.balance(t, f.tenant)

	rejected, err := f.svc.Reject(context.Background(), booking.ID, "needs longer lease", f.ownerActor())
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != enums.BookingStatusRejected {
		t.Fatalf("status %s, want REJECTED", rejected.Status)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != "needs longer lease" {
		t.Fatalf("reason not recorded: %v", rejected.RejectionReason)
	}
	if got := f.balance(t, f.tenant); !got.Equal(before) {
		t.Fatalf("rejection must not auto-refund, balance=%s", got)
	}
	if f.propertyStatus(t) != enums.PropertyStatusForRent {
		t.Fatal("property must stay FOR_RENT after rejection")
	}
}

func TestCancelWithRefund(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)

	cancelled, err := f.svc.Cancel(context.Background(), booking.ID, EndParams{
		Reason:        "changed plans",
		RefundDeposit: true,
	}, f.tenantActor())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.BookingStatusCancelled {
		t.Fatalf("status %s, want CANCELLED", cancelled.Status)
	}
	if cancelled.EndedAt == nil {
		t.Fatal("ended_at not set")
	}
	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("deposit must return on refunding cancel, balance=%s", got)
	}
	if f.propertyStatus(t) != enums.PropertyStatusForRent {
		t.Fatal("property must return to FOR_RENT")
	}

	_, err = f.svc.Cancel(context.Background(), booking.ID, EndParams{}, f.tenantActor())
	if errCode(t, err) != pkgerrors.CodeStateConflict {
		t.Fatalf("cancelling twice must fail, got %v", err)
	}
}

func TestCancelWithoutRefund(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)
	before := f.balance(t, f.tenant)

	if _, err := f.svc.Cancel(context.Background(), booking.ID, EndParams{Reason: "no-show"}, f.ownerActor()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.balance(t, f.tenant); !got.Equal(before) {
		t.Fatalf("non-refunding cancel must not move money, balance=%s", got)
	}
}

func TestCancelForbiddenForStrangers(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)

	stranger := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleUser}
	_, err := f.svc.Cancel(context.Background(), booking.ID, EndParams{}, stranger)
	if errCode(t, err) != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestTerminateActiveBooking(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)
	if _, err := f.svc.Approve(context.Background(), booking.ID, ApproveParams{}, f.ownerActor()); err != nil {
		t.Fatalf("approve: %v", err)
	}

	terminated, err := f.svc.Terminate(context.Background(), booking.ID, EndParams{
		Reason:        "property sold",
		RefundDeposit: true,
	}, f.ownerActor())
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if terminated.Status != enums.BookingStatusTerminated {
		t.Fatalf("status %s, want TERMINATED", terminated.Status)
	}
	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("deposit must return on refunding terminate, balance=%s", got)
	}
	if f.propertyStatus(t) != enums.PropertyStatusForRent {
		t.Fatal("property must return to FOR_RENT")
	}
}

func TestTerminateRequiresActive(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)

	_, err := f.svc.Terminate(context.Background(), booking.ID, EndParams{}, f.ownerActor())
	if errCode(t, err) != pkgerrors.CodeStateConflict {
		t.Fatalf("pending booking must not terminate, got %v", err)
	}
}

func TestListForTenantAndOwner(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)
	ctx := context.Background()

	tenantList, err := f.svc.ListForTenant(ctx, ListParams{UserID: f.tenant, Limit: 10})
	if err != nil {
		t.Fatalf("list for tenant: %v", err)
	}
	if len(tenantList.Items) != 1 || tenantList.Items[0].ID != booking.ID {
		t.Fatalf("unexpected tenant list %+v", tenantList.Items)
	}

	ownerList, err := f.svc.ListForOwner(ctx, ListParams{UserID: f.owner, Limit: 10})
	if err != nil {
		t.Fatalf("list for owner: %v", err)
	}
	if len(ownerList.Items) != 1 {
		t.Fatalf("owner must see bookings on their properties, got %d", len(ownerList.Items))
	}

	pending, err := f.svc.ListPendingApprovals(ctx, ListParams{UserID: f.owner, Limit: 10})
	if err != nil {
		t.Fatalf("list pending approvals: %v", err)
	}
	if len(pending.Items) != 1 {
		t.Fatalf("expected one pending approval, got %d", len(pending.Items))
	}

	if _, err := f.svc.Approve(ctx, booking.ID, ApproveParams{}, f.ownerActor()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	pending, err = f.svc.ListPendingApprovals(ctx, ListParams{UserID: f.owner, Limit: 10})
	if err != nil {
		t.Fatalf("list pending approvals: %v", err)
	}
	if len(pending.Items) != 0 {
		t.Fatalf("approved bookings must leave the pending list, got %d", len(pending.Items))
	}
}

// buildService assembles a booking service against the fixture database with
// a substitute repository or wallet.
func (f *fixture) buildService(t *testing.T, repo Repository, walletSvc wallet.Service) Service {
	t.Helper()
	runner := &gormTxRunner{db: f.db}
	propsRepo := properties.NewRepository(f.db)
	outboxSvc := outbox.NewService(outbox.NewRepository(f.db), nil)
	if walletSvc == nil {
		var err error
		walletSvc, err = wallet.NewService(runner, wallet.NewRepository(f.db), nil)
		if err != nil {
			t.Fatalf("wallet service: %v", err)
		}
	}
	if repo == nil {
		repo = NewRepository(f.db)
	}
	obligationsSvc, err := obligations.NewService(runner, obligations.NewRepository(f.db), NewRepository(f.db), propsRepo, walletSvc, outboxSvc, nil)
	if err != nil {
		t.Fatalf("obligations service: %v", err)
	}
	svc, err := NewService(runner, repo, propsRepo, walletSvc, obligationsSvc, outboxSvc, nil)
	if err != nil {
		t.Fatalf("bookings service: %v", err)
	}
	svc.(*service).now = func() time.Time { return frozenNow }
	return svc
}

type failingCreateRepo struct {
	Repository
	err error
}

func (r *failingCreateRepo) WithTx(tx *gorm.DB) Repository {
	return &failingCreateRepo{Repository: r.Repository.WithTx(tx), err: r.err}
}

func (r *failingCreateRepo) Create(ctx context.Context, booking *models.Booking) error {
	return r.err
}

// blindPrecheckRepo hides blocking bookings from the first availability check
// so a racing request reaches the in-transaction one.
type blindPrecheckRepo struct {
	Repository
	calls *int
}

func (r *blindPrecheckRepo) WithTx(tx *gorm.DB) Repository {
	return &blindPrecheckRepo{Repository: r.Repository.WithTx(tx), calls: r.calls}
}

func (r *blindPrecheckRepo) ListBlockingForProperty(ctx context.Context, propertyID uuid.UUID) ([]models.Booking, error) {
	*r.calls++
	if *r.calls == 1 {
		return nil, nil
	}
	return r.Repository.ListBlockingForProperty(ctx, propertyID)
}

type flakyRefundWallet struct {
	wallet.Service
	failures int
}

func (w *flakyRefundWallet) Credit(ctx context.Context, params wallet.MovementParams) (*wallet.EntryResult, error) {
	if w.failures > 0 && strings.HasPrefix(params.IdempotencyKey, "refund_") {
		w.failures--
		return nil, errors.New("ledger briefly unavailable")
	}
	return w.Service.Credit(ctx, params)
}

func TestCreateRejectsReplayedIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	cheap := &models.Property{
		ID:          uuid.New(),
		OwnerID:     f.owner,
		Title:       "Box Room",
		Address:     "1 Side Lane",
		Status:      enums.PropertyStatusForRent,
		MonthlyRent: decimal.NewFromInt(80),
		Deposit:     decimal.NewFromInt(100),
	}
	if err := f.db.Create(cheap).Error; err != nil {
		t.Fatalf("seed property: %v", err)
	}
	f.fund(t, f.tenant, 10000)
	ctx := context.Background()
	key := "escrow_" + uuid.NewString()

	if _, err := f.svc.Create(ctx, CreateParams{
		PropertyID:     cheap.ID,
		StartDate:      time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		IdempotencyKey: key,
	}, f.tenantActor()); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(9900)) {
		t.Fatalf("first deposit not escrowed, balance=%s", got)
	}

	_, err := f.svc.Create(ctx, CreateParams{
		PropertyID:     f.property.ID,
		StartDate:      time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		IdempotencyKey: key,
	}, f.tenantActor())
	if errCode(t, err) != pkgerrors.CodeConflict {
		t.Fatalf("reused key must not fund a second booking, got %v", err)
	}
	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(9900)) {
		t.Fatalf("balance must not change on rejected reuse, balance=%s", got)
	}

	var count int64
	if err := f.db.Model(&models.Booking{}).Where("property_id = ?", f.property.ID).Count(&count).Error; err != nil {
		t.Fatalf("count bookings: %v", err)
	}
	if count != 0 {
		t.Fatalf("booking must not exist without its own escrow, found %d rows", count)
	}
}

func TestCreateWithProposedTerms(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.tenant, 10000)
	rent := decimal.NewFromInt(1000)
	deposit := decimal.NewFromInt(1500)

	booking, err := f.svc.Create(context.Background(), CreateParams{
		PropertyID:      f.property.ID,
		StartDate:       time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		MonthlyRent:     &rent,
		SecurityDeposit: &deposit,
	}, f.tenantActor())
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if !booking.MonthlyRent.Equal(rent) || !booking.SecurityDeposit.Equal(deposit) {
		t.Fatalf("proposed terms not recorded: rent=%s deposit=%s", booking.MonthlyRent, booking.SecurityDeposit)
	}
	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(8500)) {
		t.Fatalf("escrow must match the proposed deposit, balance=%s", got)
	}
}

func TestCreateCompensatesWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	f.fund(t, f.tenant, 10000)
	repo := &failingCreateRepo{Repository: NewRepository(f.db), err: errors.New("disk full")}
	svc := f.buildService(t, repo, nil)

	_, err := svc.Create(context.Background(), CreateParams{
		PropertyID: f.property.ID,
		StartDate:  time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
	}, f.tenantActor())
	if err == nil {
		t.Fatal("expected insert failure to surface")
	}

	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("deposit must be restored after failed insert, balance=%s", got)
	}
	var count int64
	if err := f.db.Model(&models.Booking{}).Count(&count).Error; err != nil {
		t.Fatalf("count bookings: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed booking must not persist, found %d rows", count)
	}
}

func TestCreateConflictCaughtUnderLock(t *testing.T) {
	f := newFixture(t)
	f.createBooking(t)

	calls := 0
	svc := f.buildService(t, &blindPrecheckRepo{Repository: NewRepository(f.db), calls: &calls}, nil)

	other := uuid.New()
	f.fund(t, other, 5000)

	_, err := svc.Create(context.Background(), CreateParams{
		PropertyID: f.property.ID,
		StartDate:  time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
	}, auth.Actor{UserID: other, Role: enums.UserRoleUser})
	if errCode(t, err) != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT from the locked re-check, got %v", err)
	}
	if calls < 2 {
		t.Fatalf("conflict must come from the in-transaction check, saw %d lookups", calls)
	}

	if got := f.balance(t, other); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("loser's deposit must be restored, balance=%s", got)
	}
	var count int64
	if err := f.db.Model(&models.Booking{}).Count(&count).Error; err != nil {
		t.Fatalf("count bookings: %v", err)
	}
	if count != 1 {
		t.Fatalf("exactly one booking must win, found %d rows", count)
	}
}

func TestCancelRetriesRefundCredit(t *testing.T) {
	f := newFixture(t)
	booking := f.createBooking(t)
	svc := f.buildService(t, nil, &flakyRefundWallet{Service: f.wallet, failures: 2})

	cancelled, err := svc.Cancel(context.Background(), booking.ID, EndParams{
		Reason:        "changed plans",
		RefundDeposit: true,
	}, f.tenantActor())
	if err != nil {
		t.Fatalf("cancel must retry past transient refund failures: %v", err)
	}
	if cancelled.Status != enums.BookingStatusCancelled {
		t.Fatalf("status %s, want CANCELLED", cancelled.Status)
	}
	if got := f.balance(t, f.tenant); !got.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("deposit must return exactly once, balance=%s", got)
	}
}
