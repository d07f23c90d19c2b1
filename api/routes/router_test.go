package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/danielcastano/rentora-backend/internal/bookings"
	"github.com/danielcastano/rentora-backend/internal/notifications"
	"github.com/danielcastano/rentora-backend/internal/obligations"
	"github.com/danielcastano/rentora-backend/internal/properties"
	"github.com/danielcastano/rentora-backend/internal/wallet"
	"github.com/danielcastano/rentora-backend/pkg/auth"
	"github.com/danielcastano/rentora-backend/pkg/config"
	"github.com/danielcastano/rentora-backend/pkg/db/models"
	"github.com/danielcastano/rentora-backend/pkg/enums"
	"github.com/danielcastano/rentora-backend/pkg/outbox"
	"github.com/danielcastano/rentora-backend/pkg/types"
)

type routerHarness struct {
	handler  http.Handler
	db       *gorm.DB
	cfg      *config.Config
	wallet   wallet.Service
	tenant   uuid.UUID
	owner    uuid.UUID
	property *models.Property
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	dsn := "file:router_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	runner := &gormTxRunner{db: db}
	propsRepo := properties.NewRepository(db)
	bookingsRepo := bookings.NewRepository(db)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	walletSvc, err := wallet.NewService(runner, wallet.NewRepository(db), nil)
	if err != nil {
		t.Fatalf("wallet service: %v", err)
	}
	obligationsSvc, err := obligations.NewService(runner, obligations.NewRepository(db), bookingsRepo, propsRepo, walletSvc, outboxSvc, nil)
	if err != nil {
		t.Fatalf("obligations service: %v", err)
	}
	bookingsSvc, err := bookings.NewService(runner, bookingsRepo, propsRepo, walletSvc, obligationsSvc, outboxSvc, nil)
	if err != nil {
		t.Fatalf("bookings service: %v", err)
	}
	notificationsSvc, err := notifications.NewService(notifications.NewRepository(db))
	if err != nil {
		t.Fatalf("notifications service: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "dev"
	cfg.JWT = config.JWTConfig{Secret: "router-test-secret", Issuer: "rentora-test", ExpirationMinutes: 15}

	handler := NewRouter(Deps{
		Config:        cfg,
		Bookings:      bookingsSvc,
		Obligations:   obligationsSvc,
		Wallet:        walletSvc,
		Notifications: notificationsSvc,
	})

	h := &routerHarness{
		handler: handler,
		db:      db,
		cfg:     cfg,
		wallet:  walletSvc,
		tenant:  uuid.New(),
		owner:   uuid.New(),
	}
	h.property = &models.Property{
		ID:          uuid.New(),
		OwnerID:     h.owner,
		Title:       "Flat 3A",
		Address:     "9 Hill Road",
		Status:      enums.PropertyStatusForRent,
		MonthlyRent: decimal.NewFromInt(1000),
		Deposit:     decimal.NewFromInt(2000),
	}
	if err := db.Create(h.property).Error; err != nil {
		t.Fatalf("seed property: %v", err)
	}
	return h
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (h *routerHarness) token(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(h.cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h *routerHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func TestHealthLive(t *testing.T) {
	h := newRouterHarness(t)
	w := h.do(t, http.MethodGet, "/health/live", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env := w.Header().Get("X-Rentora-Env"); env != "dev" {
		t.Fatalf("unexpected env header %q", env)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := newRouterHarness(t)
	w := h.do(t, http.MethodGet, "/api/v1/wallet/balance", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	h := newRouterHarness(t)
	tenantToken := h.token(t, h.tenant, enums.UserRoleUser)
	ownerToken := h.token(t, h.owner, enums.UserRoleAgent)

	seed, err := h.wallet.Credit(context.Background(), wallet.MovementParams{
		UserID:         h.tenant,
		Amount:         decimal.NewFromInt(5000),
		Description:    "seed",
		IdempotencyKey: "seed_" + h.tenant.String(),
	})
	if err != nil || !seed.Applied {
		t.Fatalf("seed wallet: %v", err)
	}

	w := h.do(t, http.MethodPost, "/api/v1/bookings", tenantToken, map[string]any{
		"property_id": h.property.ID.String(),
		"start_date":  "2026-04-01",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create booking: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	var created types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	bookingID := created.Data.(map[string]any)["ID"]

	w = h.do(t, http.MethodGet, "/api/v1/wallet/balance", tenantToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("wallet balance: expected 200, got %d", w.Code)
	}

	approvePath := "/api/v1/bookings/" + bookingID.(string) + "/approve"
	w = h.do(t, http.MethodPost, approvePath, tenantToken, map[string]any{})
	if w.Code != http.StatusForbidden {
		t.Fatalf("tenant approve: expected 403, got %d", w.Code)
	}

	w = h.do(t, http.MethodPost, approvePath, ownerToken, map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("owner approve: expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodGet, "/api/v1/obligations/pending", tenantToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pending obligations: expected 200, got %d", w.Code)
	}
	var pending types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&pending); err != nil {
		t.Fatalf("decode pending response: %v", err)
	}
	items := pending.Data.(map[string]any)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one pending obligation, got %d", len(items))
	}
}

func TestCreateBookingValidationOverHTTP(t *testing.T) {
	h := newRouterHarness(t)
	token := h.token(t, h.tenant, enums.UserRoleUser)

	w := h.do(t, http.MethodPost, "/api/v1/bookings", token, map[string]any{
		"property_id": "not-a-uuid",
		"start_date":  "2026-04-01",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
}
