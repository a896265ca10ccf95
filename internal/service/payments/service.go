// Package payments derives what the cooperative owes each producer and gates payouts
// on the payment cycle.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
)

// CreditLedger supplies approved advance totals per producer.
type CreditLedger interface {
	ApprovedAdvances(ctx context.Context, producerID string) (decimal.Decimal, error)
}

// Notifier is told about payouts and producers that became due.
type Notifier interface {
	NotifyPaymentRecorded(ctx context.Context, payment models.Payment) error
	NotifyPaymentDue(ctx context.Context, balance models.PayableBalance) error
}

// Config holds the pricing and cycle rules.
type Config struct {
	UnitPrice  decimal.Decimal
	CycleDays  int
	MaxRetries int
}

// Service is the payment scheduler.
type Service struct {
	store    repository.Store
	credits  CreditLedger
	cfg      Config
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a payment scheduler. notifier may be nil.
func NewService(store repository.Store, credits CreditLedger, cfg Config, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, credits: credits, cfg: cfg, notifier: notifier, logger: logger, now: time.Now}
}

// ComputeBalance derives the payable balance from accepted submissions, approved
// advances and payments already made.
func (s *Service) ComputeBalance(ctx context.Context, producerID string) (models.PayableBalance, error) {
	producerID = strings.TrimSpace(producerID)
	advances, err := s.advances(ctx, producerID)
	if err != nil {
		return models.PayableBalance{}, err
	}

	var balance models.PayableBalance
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		balance, err = s.balanceTx(ctx, tx, producerID, advances)
		return err
	})
	return balance, err
}

// IsPaymentDue reports whether the cycle has elapsed since the latest accepted
// submission. A producer without accepted submissions is never due.
func (s *Service) IsPaymentDue(ctx context.Context, producerID string) (bool, error) {
	producerID = strings.TrimSpace(producerID)
	var due bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		last, err := lastAccepted(ctx, tx, producerID)
		if err != nil {
			return err
		}
		due = s.due(last)
		return nil
	})
	return due, err
}

// DueProducers lists every producer currently due, in id order.
func (s *Service) DueProducers(ctx context.Context) ([]string, error) {
	var due []string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		producers, err := tx.ListProducersWithStatus(ctx, models.StatusAccepted)
		if err != nil {
			return err
		}
		for _, producerID := range producers {
			last, err := lastAccepted(ctx, tx, producerID)
			if err != nil {
				return err
			}
			if s.due(last) {
				due = append(due, producerID)
			}
		}
		return nil
	})
	return due, err
}

// RecordPayment stores a payout covering [periodStart, periodEnd]. It refuses a
// period that overlaps an earlier payout, a producer who is not due yet and an
// amount above what is outstanding.
func (s *Service) RecordPayment(ctx context.Context, producerID string, amount decimal.Decimal, periodStart, periodEnd time.Time) (models.Payment, error) {
	producerID = strings.TrimSpace(producerID)
	if producerID == "" {
		return models.Payment{}, fmt.Errorf("%w: producer is required", models.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return models.Payment{}, models.ErrInvalidAmount
	}
	if periodStart.IsZero() || periodEnd.Before(periodStart) {
		return models.Payment{}, fmt.Errorf("%w: %s to %s", models.ErrInvalidPeriod, periodStart.Format(time.DateOnly), periodEnd.Format(time.DateOnly))
	}

	advances, err := s.advances(ctx, producerID)
	if err != nil {
		return models.Payment{}, err
	}

	var recorded models.Payment
	err = repository.Transact(ctx, s.store, s.cfg.MaxRetries, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.LockProducer(ctx, producerID); err != nil {
			return err
		}

		previous, err := tx.ListPaymentsByProducer(ctx, producerID)
		if err != nil {
			return err
		}
		for _, payment := range previous {
			if payment.Overlaps(periodStart, periodEnd) {
				return fmt.Errorf("%w: payment %s covers %s to %s", models.ErrDuplicatePaymentPeriod,
					payment.ID, payment.PeriodStart.Format(time.DateOnly), payment.PeriodEnd.Format(time.DateOnly))
			}
		}

		balance, err := s.balanceTx(ctx, tx, producerID, advances)
		if err != nil {
			return err
		}
		if !s.due(balance.LastAcceptedAt) {
			return fmt.Errorf("%w: producer %s", models.ErrPaymentNotDue, producerID)
		}
		if amount.GreaterThan(balance.Outstanding) {
			return &models.CapacityError{
				PoolID:    "producer:" + producerID,
				Requested: amount,
				Limit:     decimal.Max(balance.Outstanding, decimal.Zero),
			}
		}

		payment := models.Payment{
			ID:          uuid.NewString(),
			ProducerID:  producerID,
			Amount:      amount,
			PeriodStart: periodStart.UTC(),
			PeriodEnd:   periodEnd.UTC(),
			CreatedAt:   s.now().UTC(),
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		recorded = payment
		return nil
	})
	if err != nil {
		return models.Payment{}, err
	}

	s.logger.Info("payment recorded",
		zap.String("payment_id", recorded.ID),
		zap.String("producer_id", producerID),
		zap.String("amount", amount.String()))
	if s.notifier != nil {
		if err := s.notifier.NotifyPaymentRecorded(ctx, recorded); err != nil {
			s.logger.Warn("payment notification failed", zap.String("payment_id", recorded.ID), zap.Error(err))
		}
	}
	return recorded, nil
}

// NotifyDue tells the producer behind balance that a payout is due. It is a
// no-op without a notifier.
func (s *Service) NotifyDue(ctx context.Context, balance models.PayableBalance) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.NotifyPaymentDue(ctx, balance)
}

func (s *Service) balanceTx(ctx context.Context, tx repository.Tx, producerID string, advances decimal.Decimal) (models.PayableBalance, error) {
	accepted, err := tx.ListSubmissionsByProducer(ctx, producerID, models.StatusAccepted)
	if err != nil {
		return models.PayableBalance{}, err
	}
	payments, err := tx.ListPaymentsByProducer(ctx, producerID)
	if err != nil {
		return models.PayableBalance{}, err
	}

	balance := models.PayableBalance{
		ProducerID:     producerID,
		AcceptedAmount: decimal.Zero,
		UnitPrice:      s.cfg.UnitPrice,
		Advances:       advances,
		Paid:           decimal.Zero,
	}
	for _, submission := range accepted {
		balance.AcceptedAmount = balance.AcceptedAmount.Add(submission.ActualAmount)
		if balance.LastAcceptedAt == nil || submission.SubmittedAt.After(*balance.LastAcceptedAt) {
			at := submission.SubmittedAt
			balance.LastAcceptedAt = &at
		}
	}
	for _, payment := range payments {
		balance.Paid = balance.Paid.Add(payment.Amount)
	}

	balance.Gross = balance.AcceptedAmount.Mul(s.cfg.UnitPrice)
	balance.Balance = balance.Gross.Sub(advances)
	balance.Outstanding = balance.Balance.Sub(balance.Paid)
	return balance, nil
}

func (s *Service) advances(ctx context.Context, producerID string) (decimal.Decimal, error) {
	if s.credits == nil {
		return decimal.Zero, nil
	}
	total, err := s.credits.ApprovedAdvances(ctx, producerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load credit advances: %w", err)
	}
	return total, nil
}

// due compares whole elapsed days since last against the cycle.
func (s *Service) due(last *time.Time) bool {
	if last == nil {
		return false
	}
	days := int(s.now().Sub(*last).Hours() / 24)
	return days >= s.cfg.CycleDays
}

func lastAccepted(ctx context.Context, tx repository.Tx, producerID string) (*time.Time, error) {
	accepted, err := tx.ListSubmissionsByProducer(ctx, producerID, models.StatusAccepted)
	if err != nil {
		return nil, err
	}
	var last *time.Time
	for _, submission := range accepted {
		if last == nil || submission.SubmittedAt.After(*last) {
			at := submission.SubmittedAt
			last = &at
		}
	}
	return last, nil
}
