package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danielcastano/rentora-backend/pkg/auth"
	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/razorpay"

	"github.com/danielcastano/rentora-backend/internal/obligations"
)

// Service bridges monthly obligations to the payment gateway.
type Service interface {
	CreateRentOrder(ctx context.Context, obligationID uuid.UUID, actor auth.Actor) (*RentOrder, error)
	ConfirmRentPayment(ctx context.Context, params ConfirmParams, actor auth.Actor) (*models.MonthlyObligation, error)
}

type gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*razorpay.Order, error)
	VerifySignature(orderID, paymentID, signature string) error
	KeyID() string
}

// replayGuard keeps confirmed payment ids for long enough that gateway
// retries and double-submits from the client are absorbed.
type replayGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type service struct {
	obligations obligations.Service
	gateway     gateway
	guard       replayGuard
	users       userLookup
	confirmTTL  time.Duration
	logg        *logger.Logger
}

// RentOrder is what the client needs to open the gateway checkout. Prefill
// fields are best effort and may be empty.
type RentOrder struct {
	ObligationID uuid.UUID `json:"obligation_id"`
	OrderID      string    `json:"order_id"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	KeyID        string    `json:"key_id"`
	PrefillEmail string    `json:"prefill_email,omitempty"`
	PrefillPhone string    `json:"prefill_phone,omitempty"`
}

// ConfirmParams carries the gateway callback fields for verification.
type ConfirmParams struct {
	ObligationID uuid.UUID
	OrderID      string
	PaymentID    string
	Signature    string
}

// NewService wires payment dependencies.
func NewService(obligationsSvc obligations.Service, gw gateway, guard replayGuard, users userLookup, confirmTTL time.Duration, logg *logger.Logger) (Service, error) {
	if obligationsSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "obligations service required")
	}
	if gw == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway required")
	}
	if guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "replay guard required")
	}
	if users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user lookup required")
	}
	if confirmTTL <= 0 {
		confirmTTL = 24 * time.Hour
	}
	return &service{
		obligations: obligationsSvc,
		gateway:     gw,
		guard:       guard,
		users:       users,
		confirmTTL:  confirmTTL,
		logg:        logg,
	}, nil
}

func (s *service) CreateRentOrder(ctx context.Context, obligationID uuid.UUID, actor auth.Actor) (*RentOrder, error) {
	obligation, err := s.obligations.Get(ctx, obligationID, actor)
	if err != nil {
		return nil, err
	}
	if obligation.Status != enums.ObligationStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "obligation is not pending").
			WithDetails(map[string]any{"status": obligation.Status})
	}

	receipt := fmt.Sprintf("obl_%s", obligation.ID)
	order, err := s.gateway.CreateOrder(ctx, obligation.Amount, "", receipt)
	if err != nil {
		return nil, err
	}

	rentOrder := &RentOrder{
		ObligationID: obligation.ID,
		OrderID:      order.ID,
		Amount:       obligation.Amount.StringFixed(2),
		Currency:     order.Currency,
		KeyID:        s.gateway.KeyID(),
	}
	// Checkout prefill is cosmetic; a missing user row must not block payment.
	if payer, lookupErr := s.users.FindByID(ctx, actor.UserID); lookupErr == nil && payer != nil {
		rentOrder.PrefillEmail = payer.Email
		if payer.Phone != nil {
			rentOrder.PrefillPhone = *payer.Phone
		}
	}

	if s.logg != nil {
		fields := map[string]any{
			"obligation_id": obligation.ID.String(),
			"order_id":      order.ID,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "rent order created")
	}
	return rentOrder, nil
}

func (s *service) ConfirmRentPayment(ctx context.Context, params ConfirmParams, actor auth.Actor) (*models.MonthlyObligation, error) {
	if params.ObligationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "obligation id required")
	}
	if params.OrderID == "" || params.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and payment id required")
	}

	if err := s.gateway.VerifySignature(params.OrderID, params.PaymentID, params.Signature); err != nil {
		return nil, err
	}

	// A payment id is settled at most once. The guard fires before the
	// database write so a double-submit never reaches the obligation at all.
	key := s.guard.IdempotencyKey("payment:confirmed", params.PaymentID)
	fresh, err := s.guard.SetNX(ctx, key, params.ObligationID.String(), s.confirmTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment replay guard")
	}
	if !fresh {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already processed").
			WithDetails(map[string]any{"payment_id": params.PaymentID})
	}

	obligation, err := s.obligations.MarkPaidExternal(ctx, params.ObligationID, params.PaymentID, actor)
	if err != nil {
		// Settlement did not happen; release the payment id so a legitimate
		// retry is not locked out for the guard's whole TTL.
		if delErr := s.guard.Del(ctx, key); delErr != nil && s.logg != nil {
			fields := map[string]any{
				"payment_id": params.PaymentID,
				"error":      delErr.Error(),
			}
			s.logg.Warn(s.logg.WithFields(ctx, fields), "releasing payment replay guard failed")
		}
		return nil, err
	}

	if s.logg != nil {
		fields := map[string]any{
			"obligation_id": obligation.ID.String(),
			"payment_id":    params.PaymentID,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "rent payment confirmed")
	}
	return obligation, nil
}
