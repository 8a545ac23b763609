// Package credit moves balances between users. Transfers out of an
// account are single-writer: a short Redis lock per sender keeps a burst
// of concurrent transfers from double-spending.
package credit

import (
	"context"
	"errors"
	"time"

	"lounge/internal/lock"
	"lounge/internal/models"
	"lounge/internal/observability"
	"lounge/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ErrInsufficientFunds is returned when a debit would overdraw the account.
var ErrInsufficientFunds = errors.New("insufficient credits")

// ErrTransferInProgress is returned when the sender already has a
// transfer in flight.
var ErrTransferInProgress = errors.New("transfer already in progress")

// Service debits and credits user balances.
type Service struct {
	users   repository.UserRepository
	locks   *lock.Manager
	lockTTL time.Duration
}

// NewService wires the ledger over the user store. locks may be nil; in
// that case transfers run unguarded.
func NewService(users repository.UserRepository, locks *lock.Manager, lockTTL time.Duration) *Service {
	return &Service{users: users, locks: locks, lockTTL: lockTTL}
}

// Debit removes amount from the user's balance. The memo is carried into
// the structured log so charges can be traced back to their trigger.
func (s *Service) Debit(ctx context.Context, userID uint, amount int64, memo string) error {
	if amount <= 0 {
		return errors.New("debit amount must be positive")
	}
	if err := s.users.AdjustCredits(ctx, userID, -amount); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientFunds
		}
		return err
	}
	observability.GlobalLogger.Info("credits debited",
		"user_id", userID, "amount", amount, "memo", memo)
	return nil
}

// Credit adds amount to the user's balance.
func (s *Service) Credit(ctx context.Context, userID uint, amount int64, memo string) error {
	if amount <= 0 {
		return errors.New("credit amount must be positive")
	}
	if err := s.users.AdjustCredits(ctx, userID, amount); err != nil {
		return err
	}
	observability.GlobalLogger.Info("credits granted",
		"user_id", userID, "amount", amount, "memo", memo)
	return nil
}

// Transfer moves amount from sender to recipient. The sender's funds are
// debited first; if the credit half then fails the debit is rolled back.
// Only one transfer per sender runs at a time.
func (s *Service) Transfer(ctx context.Context, senderID, recipientID uint, amount int64) *models.AppError {
	span, ctx := observability.NewSpan(ctx, "credit.transfer")
	defer span.End()
	span.AddAttributes(
		attribute.Int64("credit.amount", amount),
		attribute.Int("credit.sender_id", int(senderID)),
		attribute.Int("credit.recipient_id", int(recipientID)),
	)

	if amount <= 0 {
		return models.NewValidationError("amount must be positive")
	}
	if senderID == recipientID {
		return models.NewValidationError("cannot transfer to yourself")
	}

	if s.locks != nil {
		handle, err := s.locks.AcquireTransfer(ctx, senderID, s.lockTTL)
		if err != nil {
			if errors.Is(err, lock.ErrNotAcquired) {
				return models.NewConflictError("transfer already in progress")
			}
			return models.NewInternalError(err)
		}
		defer func() {
			if rerr := handle.Release(ctx); rerr != nil {
				observability.GlobalLogger.Warn("transfer lock release failed",
					"user_id", senderID, "error", rerr.Error())
			}
		}()
	}

	if _, err := s.users.GetByID(ctx, recipientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("user", "recipient")
		}
		return models.NewInternalError(err)
	}

	if err := s.Debit(ctx, senderID, amount, "transfer out"); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return models.NewValidationError("insufficient credits")
		}
		return models.NewInternalError(err)
	}

	if err := s.users.AdjustCredits(ctx, recipientID, amount); err != nil {
		span.SetError(err)
		if rbErr := s.users.AdjustCredits(ctx, senderID, amount); rbErr != nil {
			observability.GlobalLogger.Error("transfer rollback failed",
				"sender_id", senderID, "amount", amount, "error", rbErr.Error())
		}
		return models.NewInternalError(err)
	}

	observability.GlobalLogger.Info("credits transferred",
		"sender_id", senderID, "recipient_id", recipientID, "amount", amount)
	return nil
}
