package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/outbox/payloads"
)

type capturingRepo struct {
	created []models.Notification
	err     error
}

func (c *capturingRepo) Create(ctx context.Context, notification *models.Notification) error {
	if c.err != nil {
		return c.err
	}
	c.created = append(c.created, *notification)
	return nil
}

type fakeOwnerLookup struct {
	ownerID uuid.UUID
	err     error
}

func (f *fakeOwnerLookup) OwnerOf(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error) {
	return f.ownerID, f.err
}

func newTestConsumer(repo *capturingRepo, owners *fakeOwnerLookup) *Consumer {
	return &Consumer{
		repo:   repo,
		owners: owners,
		logg:   logger.New(logger.Options{ServiceName: "consumer-test"}),
	}
}

func mustJSON(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestConsumerHandleBookingApprovedNotifiesTenant(t *testing.T) {
	repo := &capturingRepo{}
	consumer := newTestConsumer(repo, &fakeOwnerLookup{})
	tenantID := uuid.New()
	bookingID := uuid.New()

	data := mustJSON(t, payloads.BookingApprovedEvent{
		BookingID:   bookingID,
		PropertyID:  uuid.New(),
		TenantID:    tenantID,
		MonthlyRent: "15000.00",
	})
	ctx := context.Background()
	if err := consumer.handleEvent(ctx, enums.EventBookingApproved, data, ctx); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}

	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	got := repo.created[0]
	if got.UserID != tenantID {
		t.Fatalf("notified wrong user %s", got.UserID)
	}
	if got.Type != enums.NotificationTypeBooking {
		t.Fatalf("unexpected type %s", got.Type)
	}
	if got.Link == nil || *got.Link != "/bookings/"+bookingID.String() {
		t.Fatalf("unexpected link %v", got.Link)
	}
}

func TestConsumerHandleBookingCancelledNotifiesOwner(t *testing.T) {
	repo := &capturingRepo{}
	ownerID := uuid.New()
	consumer := newTestConsumer(repo, &fakeOwnerLookup{ownerID: ownerID})

	data := mustJSON(t, payloads.BookingCancelledEvent{
		BookingID:  uuid.New(),
		PropertyID: uuid.New(),
		TenantID:   uuid.New(),
	})
	ctx := context.Background()
	if err := consumer.handleEvent(ctx, enums.EventBookingCancelled, data, ctx); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}

	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	if repo.created[0].UserID != ownerID {
		t.Fatalf("expected owner %s, notified %s", ownerID, repo.created[0].UserID)
	}
}

func TestConsumerHandleRentDueUsesPaymentType(t *testing.T) {
	repo := &capturingRepo{}
	consumer := newTestConsumer(repo, &fakeOwnerLookup{})
	tenantID := uuid.New()

	data := mustJSON(t, payloads.RentDueEvent{
		ObligationID: uuid.New(),
		BookingID:    uuid.New(),
		TenantID:     tenantID,
		Amount:       "1200.00",
		DueDate:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	ctx := context.Background()
	if err := consumer.handleEvent(ctx, enums.EventRentDue, data, ctx); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}

	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	if repo.created[0].Type != enums.NotificationTypePayment {
		t.Fatalf("unexpected type %s", repo.created[0].Type)
	}
}

func TestConsumerHandleEventPropagatesOwnerLookupError(t *testing.T) {
	repo := &capturingRepo{}
	consumer := newTestConsumer(repo, &fakeOwnerLookup{err: errors.New("boom")})

	data := mustJSON(t, payloads.BookingCancelledEvent{
		BookingID:  uuid.New(),
		PropertyID: uuid.New(),
	})
	ctx := context.Background()
	if err := consumer.handleEvent(ctx, enums.EventBookingCancelled, data, ctx); err == nil {
		t.Fatal("expected error")
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no notification, got %d", len(repo.created))
	}
}

func TestConsumerHandleUnknownEventIsNoOp(t *testing.T) {
	repo := &capturingRepo{}
	consumer := newTestConsumer(repo, &fakeOwnerLookup{})

	ctx := context.Background()
	if err := consumer.handleEvent(ctx, enums.EventRentPaid, mustJSON(t, map[string]string{}), ctx); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no notification, got %d", len(repo.created))
	}
}
