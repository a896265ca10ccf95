package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
)

// Service exposes pools directly, each call in its own transaction.
type Service struct {
	store      repository.Store
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires a pool service.
func NewService(store repository.Store, maxRetries int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, maxRetries: maxRetries, logger: logger, now: time.Now}
}

// Open creates a pool with the given source.
func (s *Service) Open(ctx context.Context, poolID string, kind models.PoolKind, source decimal.Decimal) (models.Pool, error) {
	var pool models.Pool
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetPool(ctx, poolID); err == nil {
			return fmt.Errorf("%w: pool %s already exists", models.ErrInvalidInput, poolID)
		} else if !isPoolNotFound(err) {
			return err
		}
		var err error
		pool, err = OpenTx(ctx, tx, poolID, kind, source, s.now().UTC())
		return err
	})
	return pool, err
}

// Allocate commits amount against the pool and returns the allocation id.
func (s *Service) Allocate(ctx context.Context, poolID string, amount decimal.Decimal) (string, error) {
	var allocation models.Allocation
	err := repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		var err error
		allocation, err = AllocateTx(ctx, tx, poolID, amount, s.now().UTC())
		return err
	})
	if err != nil {
		var capErr *models.CapacityError
		if errors.As(err, &capErr) {
			s.logger.Info("allocation refused",
				zap.String("pool_id", poolID),
				zap.String("requested", capErr.Requested.String()),
				zap.String("limit", capErr.Limit.String()))
		}
		return "", err
	}
	return allocation.ID, nil
}

// Release returns an allocation to its pool.
func (s *Service) Release(ctx context.Context, allocationID string) error {
	return repository.Transact(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		_, err := ReleaseTx(ctx, tx, allocationID, s.now().UTC())
		return err
	})
}

// Remaining reports source minus committed for the pool.
func (s *Service) Remaining(ctx context.Context, poolID string) (decimal.Decimal, error) {
	pool, err := s.Snapshot(ctx, poolID)
	if err != nil {
		return decimal.Zero, err
	}
	return pool.Remaining(), nil
}

// Snapshot returns the whole pool record. The value must not be used as the
// basis of a later write.
func (s *Service) Snapshot(ctx context.Context, poolID string) (models.Pool, error) {
	var pool models.Pool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		pool, err = tx.GetPool(ctx, poolID)
		return err
	})
	return pool, err
}

func isPoolNotFound(err error) bool {
	return errors.Is(err, models.ErrPoolNotFound)
}
