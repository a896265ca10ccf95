// Package allocation implements the allocation pool every hop of the milk chain
// draws from: a source quantity, the sum committed downstream, and an atomic
// check-and-commit for new draws.
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
)

// OpenTx creates a pool holding source.
func OpenTx(ctx context.Context, tx repository.PoolRepository, id string, kind models.PoolKind, source decimal.Decimal, at time.Time) (models.Pool, error) {
	if source.IsNegative() {
		return models.Pool{}, models.ErrInvalidAmount
	}
	pool := models.Pool{
		ID:        id,
		Kind:      kind,
		Source:    source,
		Committed: decimal.Zero,
		Version:   1,
		UpdatedAt: at,
	}
	if err := tx.InsertPool(ctx, pool); err != nil {
		return models.Pool{}, fmt.Errorf("open pool %s: %w", id, err)
	}
	return pool, nil
}

// AllocateTx commits amount against the pool. The capacity check and the write
// happen in the same transaction and the write is guarded by the pool version.
func AllocateTx(ctx context.Context, tx repository.PoolRepository, poolID string, amount decimal.Decimal, at time.Time) (models.Allocation, error) {
	if !amount.IsPositive() {
		return models.Allocation{}, models.ErrInvalidAmount
	}

	pool, err := tx.GetPool(ctx, poolID)
	if err != nil {
		return models.Allocation{}, err
	}
	if pool.Closed {
		return models.Allocation{}, fmt.Errorf("%w: %s", models.ErrPoolClosed, poolID)
	}
	if amount.GreaterThan(pool.Remaining()) {
		return models.Allocation{}, &models.CapacityError{
			PoolID:    poolID,
			Unit:      pool.Kind.Unit(),
			Requested: amount,
			Limit:     pool.Remaining(),
		}
	}

	expected := pool.Version
	pool.Committed = pool.Committed.Add(amount)
	pool.UpdatedAt = at
	if err := tx.UpdatePool(ctx, pool, expected); err != nil {
		return models.Allocation{}, err
	}

	allocation := models.Allocation{
		ID:        uuid.NewString(),
		PoolID:    poolID,
		Amount:    amount,
		CreatedAt: at,
	}
	if err := tx.InsertAllocation(ctx, allocation); err != nil {
		return models.Allocation{}, fmt.Errorf("record allocation: %w", err)
	}
	return allocation, nil
}

// ReleaseTx returns an allocation's amount to its pool. Releasing twice fails
// with models.ErrAlreadyResolved.
func ReleaseTx(ctx context.Context, tx repository.PoolRepository, allocationID string, at time.Time) (models.Allocation, error) {
	allocation, err := tx.GetAllocation(ctx, allocationID)
	if err != nil {
		return models.Allocation{}, err
	}
	if allocation.Released {
		return models.Allocation{}, fmt.Errorf("%w: allocation %s already released", models.ErrAlreadyResolved, allocationID)
	}

	pool, err := tx.GetPool(ctx, allocation.PoolID)
	if err != nil {
		return models.Allocation{}, err
	}
	expected := pool.Version
	pool.Committed = pool.Committed.Sub(allocation.Amount)
	if pool.Committed.IsNegative() {
		return models.Allocation{}, fmt.Errorf("pool %s would hold negative commitment", pool.ID)
	}
	pool.UpdatedAt = at
	if err := tx.UpdatePool(ctx, pool, expected); err != nil {
		return models.Allocation{}, err
	}

	allocation.Released = true
	allocation.ReleasedAt = &at
	if err := tx.UpdateAllocation(ctx, allocation); err != nil {
		return models.Allocation{}, fmt.Errorf("mark allocation released: %w", err)
	}
	return allocation, nil
}

// GrowTx adds amount to the pool source, opening the pool on first use.
func GrowTx(ctx context.Context, tx repository.PoolRepository, poolID string, kind models.PoolKind, amount decimal.Decimal, at time.Time) (models.Pool, error) {
	if !amount.IsPositive() {
		return models.Pool{}, models.ErrInvalidAmount
	}

	pool, err := tx.GetPool(ctx, poolID)
	if err != nil {
		if isPoolNotFound(err) {
			return OpenTx(ctx, tx, poolID, kind, amount, at)
		}
		return models.Pool{}, err
	}
	if pool.Closed {
		return models.Pool{}, fmt.Errorf("%w: %s", models.ErrPoolClosed, poolID)
	}

	expected := pool.Version
	pool.Source = pool.Source.Add(amount)
	pool.UpdatedAt = at
	if err := tx.UpdatePool(ctx, pool, expected); err != nil {
		return models.Pool{}, err
	}
	pool.Version = expected + 1
	return pool, nil
}

// CloseTx locks the pool against further allocations.
func CloseTx(ctx context.Context, tx repository.PoolRepository, poolID string, at time.Time) error {
	pool, err := tx.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.Closed {
		return nil
	}
	expected := pool.Version
	pool.Closed = true
	pool.UpdatedAt = at
	return tx.UpdatePool(ctx, pool, expected)
}
