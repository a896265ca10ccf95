// Package processing tracks milk processing facilities receive from carrier trips.
package processing

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

// Service is the processing receipt tracker.
type Service struct {
	store      repository.Store
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires a processing receipt tracker.
func NewService(store repository.Store, maxRetries int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, maxRetries: maxRetries, logger: logger, now: time.Now}
}

// Receive reserves amount on the carrier trip. Concurrent receives against one
// trip serialize on its pool version, so they can never jointly overcommit it.
func (s *Service) Receive(ctx context.Context, carrierAllocationID, processingFacilityID string, amount decimal.Decimal) (models.ProcessingReceipt, error) {
	processingFacilityID = strings.TrimSpace(processingFacilityID)
	if processingFacilityID == "" {
		return models.ProcessingReceipt{}, fmt.Errorf("%w: processing facility is required", models.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return models.ProcessingReceipt{}, models.ErrInvalidAmount
	}

	var received models.ProcessingReceipt
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		trip, err := tx.GetCarrierAllocation(ctx, carrierAllocationID)
		if err != nil {
			return err
		}

		at := s.now().UTC()
		draw, err := allocation.AllocateTx(ctx, tx, models.CarrierPoolID(trip.ID), amount, at)
		if err != nil {
			return err
		}

		receipt := models.ProcessingReceipt{
			ID:                   uuid.NewString(),
			CarrierAllocationID:  trip.ID,
			ProcessingFacilityID: processingFacilityID,
			AllocationID:         draw.ID,
			Amount:               amount,
			Status:               models.StatusPending,
			CreatedAt:            at,
		}
		if err := tx.InsertReceipt(ctx, receipt); err != nil {
			return fmt.Errorf("record processing receipt: %w", err)
		}
		received = receipt
		return nil
	})
	if err != nil {
		return models.ProcessingReceipt{}, err
	}

	s.logger.Info("processing receipt recorded",
		zap.String("receipt_id", received.ID),
		zap.String("carrier_allocation_id", carrierAllocationID),
		zap.String("amount", amount.String()))
	return received, nil
}

// Approve completes a receipt. There is no partial approval.
func (s *Service) Approve(ctx context.Context, receiptID string) (models.ProcessingReceipt, error) {
	var approved models.ProcessingReceipt
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		receipt, err := tx.GetReceipt(ctx, receiptID)
		if err != nil {
			return err
		}
		if err := receipt.Status.Transition(models.StatusCompleted, models.StatusCompleted); err != nil {
			return err
		}

		at := s.now().UTC()
		receipt.Status = models.StatusCompleted
		receipt.ResolvedAt = &at
		if err := tx.UpdateReceipt(ctx, receipt, models.StatusPending); err != nil {
			return err
		}
		approved = receipt
		return nil
	})
	if err != nil {
		return models.ProcessingReceipt{}, err
	}

	s.logger.Info("processing receipt completed", zap.String("receipt_id", approved.ID))
	return approved, nil
}

// Reject drops a pending receipt and hands its amount back to the trip.
func (s *Service) Reject(ctx context.Context, receiptID string) (models.ProcessingReceipt, error) {
	var rejected models.ProcessingReceipt
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		receipt, err := tx.GetReceipt(ctx, receiptID)
		if err != nil {
			return err
		}
		if err := receipt.Status.Transition(models.StatusRejected, models.StatusCompleted); err != nil {
			return err
		}

		at := s.now().UTC()
		if _, err := allocation.ReleaseTx(ctx, tx, receipt.AllocationID, at); err != nil {
			return err
		}
		receipt.Status = models.StatusRejected
		receipt.ResolvedAt = &at
		if err := tx.UpdateReceipt(ctx, receipt, models.StatusPending); err != nil {
			return err
		}
		rejected = receipt
		return nil
	})
	if err != nil {
		return models.ProcessingReceipt{}, err
	}

	s.logger.Info("processing receipt rejected", zap.String("receipt_id", rejected.ID))
	return rejected, nil
}

// Get returns a processing receipt.
func (s *Service) Get(ctx context.Context, receiptID string) (models.ProcessingReceipt, error) {
	var receipt models.ProcessingReceipt
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		receipt, err = tx.GetReceipt(ctx, receiptID)
		return err
	})
	return receipt, err
}
