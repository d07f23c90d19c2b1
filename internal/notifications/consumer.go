package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/outbox"
	"github.com/danielcastano/rentora-backend/pkg/outbox/idempotency"
	"github.com/danielcastano/rentora-backend/pkg/outbox/payloads"
)

const bookingNotificationConsumer = "booking-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type ownerLookup interface {
	OwnerOf(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error)
}

// Consumer watches domain events and turns booking lifecycle transitions into
// in-app notifications.
type Consumer struct {
	repo         repository
	owners       ownerLookup
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a booking notification consumer.
func NewConsumer(repo repository, owners ownerLookup, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if owners == nil {
		return nil, fmt.Errorf("owner lookup required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		owners:       owners,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if !eventType.IsValid() {
		c.logg.Info(logCtx, "skipping unknown event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, bookingNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handleEvent(ctx, eventType, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, bookingNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func (c *Consumer) handleEvent(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case enums.EventBookingApproved:
		var payload payloads.BookingApprovedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notifyTenant(ctx, payload.TenantID, payload.BookingID, enums.NotificationTypeBooking,
			"Booking approved",
			fmt.Sprintf("Your booking %s has been approved. Monthly rent is %s.", payload.BookingID, payload.MonthlyRent),
			logCtx)
	case enums.EventBookingRejected:
		var payload payloads.BookingRejectedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		message := fmt.Sprintf("Your booking %s was rejected.", payload.BookingID)
		if payload.Reason != "" {
			message = fmt.Sprintf("Your booking %s was rejected. Reason: %s", payload.BookingID, payload.Reason)
		}
		return c.notifyTenant(ctx, payload.TenantID, payload.BookingID, enums.NotificationTypeBooking,
			"Booking rejected", message, logCtx)
	case enums.EventBookingCancelled:
		var payload payloads.BookingCancelledEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notifyOwner(ctx, payload.PropertyID, payload.BookingID,
			"Booking cancelled",
			fmt.Sprintf("Booking %s for your property was cancelled.", payload.BookingID),
			logCtx)
	case enums.EventBookingTerminated:
		var payload payloads.BookingTerminatedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notifyTenant(ctx, payload.TenantID, payload.BookingID, enums.NotificationTypeBooking,
			"Booking terminated",
			fmt.Sprintf("Your booking %s was terminated.", payload.BookingID),
			logCtx)
	case enums.EventRentDue:
		var payload payloads.RentDueEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notifyTenant(ctx, payload.TenantID, payload.BookingID, enums.NotificationTypePayment,
			"Rent due",
			fmt.Sprintf("Rent of %s is due on %s.", payload.Amount, payload.DueDate.Format("2 Jan 2006")),
			logCtx)
	default:
		c.logg.Info(logCtx, "event type not handled")
		return nil
	}
}

func (c *Consumer) notifyTenant(ctx context.Context, tenantID, bookingID uuid.UUID, kind enums.NotificationType, title, message string, logCtx context.Context) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("tenant id missing")
	}
	link := fmt.Sprintf("/bookings/%s", bookingID)
	notification := &models.Notification{
		ID:      uuid.New(),
		UserID:  tenantID,
		Type:    kind,
		Title:   title,
		Message: strings.TrimSpace(message),
		Link:    stringPtr(link),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "tenant notified")
	return nil
}

func (c *Consumer) notifyOwner(ctx context.Context, propertyID, bookingID uuid.UUID, title, message string, logCtx context.Context) error {
	if propertyID == uuid.Nil {
		return fmt.Errorf("property id missing")
	}
	ownerID, err := c.owners.OwnerOf(ctx, propertyID)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("/owner/bookings/%s", bookingID)
	notification := &models.Notification{
		ID:      uuid.New(),
		UserID:  ownerID,
		Type:    enums.NotificationTypeBooking,
		Title:   title,
		Message: strings.TrimSpace(message),
		Link:    stringPtr(link),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "owner notified")
	return nil
}

func stringPtr(value string) *string {
	return &value
}
