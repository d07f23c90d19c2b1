package wallet

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/danielcastano/rentora-backend/pkg/db"
	"github.com/danielcastano/rentora-backend/pkg/db/models"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/pagination"
)

// Service defines the wallet ledger operations.
type Service interface {
	Debit(ctx context.Context, params MovementParams) (*EntryResult, error)
	Credit(ctx context.Context, params MovementParams) (*EntryResult, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Entries(ctx context.Context, params ListParams) (*ListResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	db   txRunner
	repo Repository
	logg *logger.Logger
}

// MovementParams describes a single debit or credit request. Amount is always
// positive; the operation decides the sign.
type MovementParams struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// EntryResult reports the outcome of a movement. A replayed key returns the
// original entry with Replayed set; an insufficient balance returns
// Applied=false with the amounts instead of an error.
type EntryResult struct {
	Applied   bool
	Replayed  bool
	Entry     *models.LedgerEntry
	Required  decimal.Decimal
	Available decimal.Decimal
}

// ListParams configures pagination for ledger entries.
type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// ListResult wraps returned entries and the cursor for the next page.
type ListResult struct {
	Items  []models.LedgerEntry `json:"items"`
	Cursor string               `json:"cursor"`
}

// NewService wires wallet dependencies.
func NewService(db txRunner, repo Repository, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet tx runner required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet repository required")
	}
	return &service{db: db, repo: repo, logg: logg}, nil
}

func (s *service) Debit(ctx context.Context, params MovementParams) (*EntryResult, error) {
	return s.apply(ctx, params, true)
}

func (s *service) Credit(ctx context.Context, params MovementParams) (*EntryResult, error) {
	return s.apply(ctx, params, false)
}

func (s *service) apply(ctx context.Context, params MovementParams, debit bool) (*EntryResult, error) {
	if err := validateMovement(params); err != nil {
		return nil, err
	}

	var result EntryResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindEntryByKey(ctx, params.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.UserID != params.UserID {
				return pkgerrors.New(pkgerrors.CodeConflict, "idempotency key already used by another wallet")
			}
			result = EntryResult{Applied: true, Replayed: true, Entry: existing}
			return nil
		}

		account, err := repo.LockAccount(ctx, params.UserID)
		if err != nil {
			return err
		}

		signed := params.Amount
		if debit {
			signed = params.Amount.Neg()
			if account.Balance.LessThan(params.Amount) {
				result = EntryResult{
					Applied:   false,
					Required:  params.Amount,
					Available: account.Balance,
				}
				return nil
			}
		}

		newBalance := account.Balance.Add(signed)
		entry := &models.LedgerEntry{
			ID:             uuid.New(),
			UserID:         params.UserID,
			Amount:         signed,
			BalanceAfter:   newBalance,
			Description:    params.Description,
			IdempotencyKey: params.IdempotencyKey,
		}
		if err := repo.InsertEntry(ctx, entry); err != nil {
			if dbpkg.IsUniqueViolation(err, "uq_ledger_entries_idempotency_key") {
				replayed, findErr := repo.FindEntryByKey(ctx, params.IdempotencyKey)
				if findErr == nil && replayed != nil && replayed.UserID == params.UserID {
					result = EntryResult{Applied: true, Replayed: true, Entry: replayed}
					return nil
				}
			}
			return err
		}
		if err := repo.UpdateBalance(ctx, params.UserID, newBalance); err != nil {
			return err
		}

		result = EntryResult{Applied: true, Entry: entry}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "applying wallet movement")
	}

	if s.logg != nil && result.Applied && !result.Replayed {
		fields := map[string]any{
			"user_id": params.UserID.String(),
			"amount":  result.Entry.Amount.StringFixed(2),
			"key":     params.IdempotencyKey,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "ledger entry recorded")
	}
	return &result, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if userID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	account, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading wallet account")
	}
	if account == nil {
		return decimal.Zero, nil
	}
	return account.Balance, nil
}

func (s *service) Entries(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listEntriesParams{
		UserID: params.UserID,
		Limit:  params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListEntries(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func validateMovement(params MovementParams) error {
	if params.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	return nil
}
