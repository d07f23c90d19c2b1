package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danielcastano/rentora-backend/pkg/config"
	"github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
)

const ordersPath = "/v1/orders"

// minorUnitFactor converts major currency units to the gateway's minor units.
var minorUnitFactor = decimal.NewFromInt(100)

// Order is the gateway's order resource as returned by order creation.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Client wraps the Razorpay REST API plus the signature verification scheme.
type Client struct {
	httpClient *http.Client
	cfg        config.RazorpayConfig
	logg       *logger.Logger
}

// NewClient builds the gateway client. Missing credentials are allowed here;
// each order creation re-checks so the service can boot without gateway
// access in environments that never reach the payment flow.
func NewClient(cfg config.RazorpayConfig, logg *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
		logg:       logg,
	}
}

// KeyID exposes the public key id the frontend needs for checkout.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.cfg.KeyID
}

// CreateOrder registers a payment order with the gateway. The amount is in
// major currency units and is converted to minor units on the wire.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Order, error) {
	if strings.TrimSpace(c.cfg.KeyID) == "" || strings.TrimSpace(c.cfg.KeySecret) == "" {
		return nil, errors.New(errors.CodeConfiguration, "payment gateway credentials are not configured")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New(errors.CodeValidation, "order amount must be positive")
	}
	if c.cfg.MaxAmount > 0 && amount.GreaterThan(decimal.NewFromInt(c.cfg.MaxAmount)) {
		return nil, errors.New(errors.CodeLimitExceeded, "order amount exceeds gateway transaction limit").
			WithDetails(map[string]any{
				"amount": amount.StringFixed(2),
				"limit":  c.cfg.MaxAmount,
			})
	}
	if currency == "" {
		currency = c.cfg.Currency
	}

	body := map[string]any{
		"amount":   amount.Mul(minorUnitFactor).IntPart(),
		"currency": currency,
		"receipt":  receipt,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "encoding order request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+ordersPath, bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "building order request")
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "calling payment gateway")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "reading gateway response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.logg != nil {
			c.logg.Warn(ctx, fmt.Sprintf("gateway order creation failed with status %d", resp.StatusCode))
		}
		return nil, errors.New(errors.CodeDependency, fmt.Sprintf("payment gateway returned status %d", resp.StatusCode))
	}

	var order Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decoding gateway order")
	}
	if order.ID == "" {
		return nil, errors.New(errors.CodeDependency, "gateway order missing id")
	}
	return &order, nil
}

// VerifySignature checks the checkout callback signature: HMAC-SHA256 over
// "<orderID>|<paymentID>" keyed with the secret, hex encoded, compared in
// constant time.
func (c *Client) VerifySignature(orderID, paymentID, signature string) error {
	if strings.TrimSpace(c.cfg.KeySecret) == "" {
		return errors.New(errors.CodeConfiguration, "payment gateway credentials are not configured")
	}
	if orderID == "" || paymentID == "" || signature == "" {
		return errors.New(errors.CodeInvalidSignature, "order id, payment id and signature are required")
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New(errors.CodeInvalidSignature, "payment signature mismatch")
	}
	return nil
}
