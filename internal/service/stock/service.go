// Package stock tracks product batches entering inventory and the consumptions
// drawn against them.
package stock

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

// Service is the stock ledger.
type Service struct {
	store      repository.Store
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires a stock ledger.
func NewService(store repository.Store, maxRetries int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, maxRetries: maxRetries, logger: logger, now: time.Now}
}

// StockIn records a new batch and opens its pool.
func (s *Service) StockIn(ctx context.Context, productID string, amount decimal.Decimal) (models.StockBatch, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return models.StockBatch{}, fmt.Errorf("%w: product is required", models.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return models.StockBatch{}, models.ErrInvalidAmount
	}

	batch := models.StockBatch{
		ID:        uuid.NewString(),
		ProductID: productID,
		Amount:    amount,
		CreatedAt: s.now().UTC(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := allocation.OpenTx(ctx, tx, models.BatchPoolID(batch.ID), models.PoolStockBatch, amount, batch.CreatedAt); err != nil {
			return err
		}
		return tx.InsertBatch(ctx, batch)
	})
	if err != nil {
		return models.StockBatch{}, fmt.Errorf("record stock batch: %w", err)
	}

	s.logger.Info("stock batch recorded",
		zap.String("batch_id", batch.ID),
		zap.String("product_id", productID),
		zap.String("amount", amount.String()))
	return batch, nil
}

// StockOut reserves amount on one batch. A linked receipt must exist and be completed.
func (s *Service) StockOut(ctx context.Context, batchID string, amount decimal.Decimal, linkedReceiptID string) (models.StockConsumption, error) {
	if !amount.IsPositive() {
		return models.StockConsumption{}, models.ErrInvalidAmount
	}
	linkedReceiptID = strings.TrimSpace(linkedReceiptID)

	var consumed models.StockConsumption
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		batch, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if linkedReceiptID != "" {
			receipt, err := tx.GetReceipt(ctx, linkedReceiptID)
			if err != nil {
				return err
			}
			if receipt.Status != models.StatusCompleted {
				return fmt.Errorf("%w: receipt %s is %s", models.ErrInvalidInput, receipt.ID, receipt.Status)
			}
		}

		at := s.now().UTC()
		draw, err := allocation.AllocateTx(ctx, tx, models.BatchPoolID(batch.ID), amount, at)
		if err != nil {
			return err
		}

		consumption := models.StockConsumption{
			ID:              uuid.NewString(),
			StockBatchID:    batch.ID,
			ProductID:       batch.ProductID,
			AllocationID:    draw.ID,
			Amount:          amount,
			LinkedReceiptID: linkedReceiptID,
			Status:          models.StatusPending,
			CreatedAt:       at,
		}
		if err := tx.InsertConsumption(ctx, consumption); err != nil {
			return fmt.Errorf("record stock consumption: %w", err)
		}
		consumed = consumption
		return nil
	})
	if err != nil {
		return models.StockConsumption{}, err
	}

	s.logger.Info("stock consumption recorded",
		zap.String("consumption_id", consumed.ID),
		zap.String("batch_id", batchID),
		zap.String("amount", amount.String()))
	return consumed, nil
}

// Approve confirms a consumption.
func (s *Service) Approve(ctx context.Context, consumptionID string) (models.StockConsumption, error) {
	return s.resolve(ctx, consumptionID, models.StatusApproved)
}

// Reject cancels a consumption and returns its amount to the batch.
func (s *Service) Reject(ctx context.Context, consumptionID string) (models.StockConsumption, error) {
	return s.resolve(ctx, consumptionID, models.StatusRejected)
}

func (s *Service) resolve(ctx context.Context, consumptionID string, target models.Status) (models.StockConsumption, error) {
	var resolved models.StockConsumption
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		consumption, err := tx.GetConsumption(ctx, consumptionID)
		if err != nil {
			return err
		}
		if err := consumption.Status.Transition(target, models.StatusApproved); err != nil {
			return err
		}

		at := s.now().UTC()
		if target == models.StatusRejected {
			if _, err := allocation.ReleaseTx(ctx, tx, consumption.AllocationID, at); err != nil {
				return err
			}
		}
		consumption.Status = target
		consumption.ResolvedAt = &at
		if err := tx.UpdateConsumption(ctx, consumption, models.StatusPending); err != nil {
			return err
		}
		resolved = consumption
		return nil
	})
	if err != nil {
		return models.StockConsumption{}, err
	}

	s.logger.Info("stock consumption resolved",
		zap.String("consumption_id", resolved.ID),
		zap.String("status", string(resolved.Status)))
	return resolved, nil
}

// BalanceOf sums every batch of the product minus its non-rejected consumptions.
func (s *Service) BalanceOf(ctx context.Context, productID string) (models.ProductBalance, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return models.ProductBalance{}, fmt.Errorf("%w: product is required", models.ErrInvalidInput)
	}
	balance := models.ProductBalance{
		ProductID: productID,
		StockIn:   decimal.Zero,
		StockOut:  decimal.Zero,
		Balance:   decimal.Zero,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		batches, err := tx.ListBatchesByProduct(ctx, productID)
		if err != nil {
			return err
		}
		consumptions, err := tx.ListConsumptionsByProduct(ctx, productID)
		if err != nil {
			return err
		}

		for _, batch := range batches {
			balance.StockIn = balance.StockIn.Add(batch.Amount)
		}
		for _, consumption := range consumptions {
			if consumption.Status == models.StatusRejected {
				continue
			}
			balance.StockOut = balance.StockOut.Add(consumption.Amount)
		}
		balance.Batches = len(batches)
		return nil
	})
	if err != nil {
		return models.ProductBalance{}, err
	}
	balance.Balance = balance.StockIn.Sub(balance.StockOut)
	return balance, nil
}
