// Package carriers tracks milk assigned from collection points to carrier trips.
package carriers

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

// Service is the carrier allocation tracker.
type Service struct {
	store      repository.Store
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires a carrier allocation tracker.
func NewService(store repository.Store, maxRetries int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, maxRetries: maxRetries, logger: logger, now: time.Now}
}

// Assign draws amount from the collection point pool and opens the trip's own
// pool for processing receipts.
func (s *Service) Assign(ctx context.Context, carrierID, collectionPointID string, amount decimal.Decimal) (models.CarrierAllocation, error) {
	carrierID = strings.TrimSpace(carrierID)
	collectionPointID = strings.TrimSpace(collectionPointID)
	if carrierID == "" || collectionPointID == "" {
		return models.CarrierAllocation{}, fmt.Errorf("%w: carrier and collection point are required", models.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return models.CarrierAllocation{}, models.ErrInvalidAmount
	}

	var assigned models.CarrierAllocation
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		at := s.now().UTC()
		draw, err := allocation.AllocateTx(ctx, tx, models.CollectionPointPoolID(collectionPointID), amount, at)
		if err != nil {
			return err
		}

		record := models.CarrierAllocation{
			ID:                uuid.NewString(),
			CarrierID:         carrierID,
			CollectionPointID: collectionPointID,
			AllocationID:      draw.ID,
			Amount:            amount,
			Status:            models.StatusPending,
			CreatedAt:         at,
		}
		if _, err := allocation.OpenTx(ctx, tx, models.CarrierPoolID(record.ID), models.PoolCarrierAllocation, amount, at); err != nil {
			return err
		}
		if err := tx.InsertCarrierAllocation(ctx, record); err != nil {
			return fmt.Errorf("record carrier allocation: %w", err)
		}
		assigned = record
		return nil
	})
	if err != nil {
		return models.CarrierAllocation{}, err
	}

	s.logger.Info("carrier allocation assigned",
		zap.String("carrier_allocation_id", assigned.ID),
		zap.String("carrier_id", carrierID),
		zap.String("collection_point_id", collectionPointID),
		zap.String("amount", amount.String()))
	return assigned, nil
}

// Approve completes the trip. The amount stays committed.
func (s *Service) Approve(ctx context.Context, carrierAllocationID string) (models.CarrierAllocation, error) {
	var approved models.CarrierAllocation
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		record, err := tx.GetCarrierAllocation(ctx, carrierAllocationID)
		if err != nil {
			return err
		}
		if err := record.Status.Transition(models.StatusCompleted, models.StatusCompleted); err != nil {
			return err
		}

		at := s.now().UTC()
		record.Status = models.StatusCompleted
		record.ResolvedAt = &at
		if err := tx.UpdateCarrierAllocation(ctx, record, models.StatusPending); err != nil {
			return err
		}
		approved = record
		return nil
	})
	if err != nil {
		return models.CarrierAllocation{}, err
	}

	s.logger.Info("carrier allocation completed", zap.String("carrier_allocation_id", approved.ID))
	return approved, nil
}

// Reject returns the amount to the collection point and closes the trip pool.
// A trip that already has processing receipts against it cannot be rejected.
func (s *Service) Reject(ctx context.Context, carrierAllocationID string) (models.CarrierAllocation, error) {
	var rejected models.CarrierAllocation
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		record, err := tx.GetCarrierAllocation(ctx, carrierAllocationID)
		if err != nil {
			return err
		}
		if err := record.Status.Transition(models.StatusRejected, models.StatusCompleted); err != nil {
			return err
		}

		poolID := models.CarrierPoolID(record.ID)
		pool, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if pool.Committed.IsPositive() {
			return fmt.Errorf("%w: %s of carrier allocation %s already received", models.ErrInvalidStatusTransition, pool.Committed.String(), record.ID)
		}

		at := s.now().UTC()
		if _, err := allocation.ReleaseTx(ctx, tx, record.AllocationID, at); err != nil {
			return err
		}
		if err := allocation.CloseTx(ctx, tx, poolID, at); err != nil {
			return err
		}

		record.Status = models.StatusRejected
		record.ResolvedAt = &at
		if err := tx.UpdateCarrierAllocation(ctx, record, models.StatusPending); err != nil {
			return err
		}
		rejected = record
		return nil
	})
	if err != nil {
		return models.CarrierAllocation{}, err
	}

	s.logger.Info("carrier allocation rejected",
		zap.String("carrier_allocation_id", rejected.ID),
		zap.String("released", rejected.Amount.String()))
	return rejected, nil
}

// RemainingFor is what processing receipts may still draw from the trip.
func (s *Service) RemainingFor(ctx context.Context, carrierAllocationID string) (decimal.Decimal, error) {
	remaining := decimal.Zero
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		record, err := tx.GetCarrierAllocation(ctx, carrierAllocationID)
		if err != nil {
			return err
		}
		pool, err := tx.GetPool(ctx, models.CarrierPoolID(record.ID))
		if err != nil {
			return err
		}
		remaining = pool.Available()
		return nil
	})
	return remaining, err
}

// Get returns a carrier allocation.
func (s *Service) Get(ctx context.Context, carrierAllocationID string) (models.CarrierAllocation, error) {
	var record models.CarrierAllocation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		record, err = tx.GetCarrierAllocation(ctx, carrierAllocationID)
		return err
	})
	return record, err
}
