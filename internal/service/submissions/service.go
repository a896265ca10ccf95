// Package submissions records producer milk deliveries and the collector's verdict on them.
package submissions

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
	"github.com/mamadbah2/milkledger/internal/service/allocation"
)

// Notifier is told about resolved submissions once they are committed.
type Notifier interface {
	NotifySubmissionResolved(ctx context.Context, submission models.Submission) error
}

// Config holds the ledger rules applied on resolution.
type Config struct {
	// QuantityTolerance is the fraction of the declared amount the actual
	// amount may drift before the submission is flagged for review.
	QuantityTolerance decimal.Decimal
	MaxRetries        int
}

// Resolution is the collector's decision on a pending submission.
type Resolution struct {
	Decision     models.Decision
	ActualAmount *decimal.Decimal
	QualityNote  string
}

// Service is the submission ledger.
type Service struct {
	store    repository.Store
	cfg      Config
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a submission ledger. notifier may be nil.
func NewService(store repository.Store, cfg Config, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cfg: cfg, notifier: notifier, logger: logger, now: time.Now}
}

// Submit records a pending delivery.
func (s *Service) Submit(ctx context.Context, producerID, collectionPointID, milkType string, amount decimal.Decimal) (models.Submission, error) {
	producerID = strings.TrimSpace(producerID)
	collectionPointID = strings.TrimSpace(collectionPointID)
	milkType = strings.ToLower(strings.TrimSpace(milkType))
	if producerID == "" || collectionPointID == "" || milkType == "" {
		return models.Submission{}, fmt.Errorf("%w: producer, collection point and milk type are required", models.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return models.Submission{}, models.ErrInvalidAmount
	}

	submission := models.Submission{
		ID:                uuid.NewString(),
		ProducerID:        producerID,
		CollectionPointID: collectionPointID,
		MilkType:          milkType,
		DeclaredAmount:    amount,
		ActualAmount:      decimal.Zero,
		Status:            models.StatusPending,
		SubmittedAt:       s.now().UTC(),
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertSubmission(ctx, submission)
	})
	if err != nil {
		return models.Submission{}, fmt.Errorf("record submission: %w", err)
	}

	s.logger.Info("submission recorded",
		zap.String("submission_id", submission.ID),
		zap.String("producer_id", producerID),
		zap.String("amount", amount.String()))
	return submission, nil
}

// Resolve accepts or rejects a pending submission. Accepting feeds the actual
// amount into the collection point pool. A drift beyond the tolerance flags the
// submission and comes back as a warning.
func (s *Service) Resolve(ctx context.Context, submissionID string, resolution Resolution) (models.Submission, []models.Warning, error) {
	if resolution.ActualAmount != nil && !resolution.ActualAmount.IsPositive() {
		return models.Submission{}, nil, models.ErrInvalidAmount
	}

	var (
		resolved models.Submission
		warnings []models.Warning
	)
	err := repository.Transact(ctx, s.store, s.cfg.MaxRetries, func(ctx context.Context, tx repository.Tx) error {
		warnings = nil

		submission, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		target := resolution.Decision.Status()
		if err := submission.Status.Transition(target, models.StatusAccepted); err != nil {
			return err
		}

		at := s.now().UTC()
		submission.Status = target
		submission.QualityNote = strings.TrimSpace(resolution.QualityNote)
		submission.ResolvedAt = &at

		if target == models.StatusAccepted {
			actual := submission.DeclaredAmount
			if resolution.ActualAmount != nil {
				actual = *resolution.ActualAmount
			}
			submission.ActualAmount = actual

			if s.exceedsTolerance(submission.DeclaredAmount, actual) {
				submission.FlaggedForReview = true
				warnings = append(warnings, models.Warning{
					Code:    models.WarningQuantityMismatch,
					Message: fmt.Sprintf("declared %sL, measured %sL", submission.DeclaredAmount.String(), actual.String()),
				})
			}

			poolID := models.CollectionPointPoolID(submission.CollectionPointID)
			if _, err := allocation.GrowTx(ctx, tx, poolID, models.PoolCollectionPoint, actual, at); err != nil {
				return fmt.Errorf("credit collection point: %w", err)
			}
		}

		if err := tx.UpdateSubmission(ctx, submission, models.StatusPending); err != nil {
			return err
		}
		resolved = submission
		return nil
	})
	if err != nil {
		return models.Submission{}, nil, err
	}

	s.logger.Info("submission resolved",
		zap.String("submission_id", resolved.ID),
		zap.String("status", string(resolved.Status)),
		zap.Bool("flagged", resolved.FlaggedForReview))
	s.notify(ctx, resolved)
	return resolved, warnings, nil
}

// Get returns a submission.
func (s *Service) Get(ctx context.Context, submissionID string) (models.Submission, error) {
	var submission models.Submission
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		submission, err = tx.GetSubmission(ctx, submissionID)
		return err
	})
	return submission, err
}

// ListByProducer returns a producer's submissions, oldest first. An empty status matches all.
func (s *Service) ListByProducer(ctx context.Context, producerID string, status models.Status) ([]models.Submission, error) {
	producerID = strings.TrimSpace(producerID)
	var out []models.Submission
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListSubmissionsByProducer(ctx, producerID, status)
		return err
	})
	return out, err
}

func (s *Service) exceedsTolerance(declared, actual decimal.Decimal) bool {
	limit := declared.Mul(s.cfg.QuantityTolerance)
	return actual.Sub(declared).Abs().GreaterThan(limit)
}

func (s *Service) notify(ctx context.Context, submission models.Submission) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifySubmissionResolved(ctx, submission); err != nil {
		s.logger.Warn("submission notification failed", zap.String("submission_id", submission.ID), zap.Error(err))
	}
}
