package allocation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
	"github.com/mamadbah2/milkledger/internal/repository/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, repository.DefaultMaxRetries, nil), store
}

func TestAllocateWithinCapacity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Open(ctx, "cp:north", models.PoolCollectionPoint, decimal.NewFromInt(50))
	require.NoError(t, err)

	id, err := svc.Allocate(ctx, "cp:north", decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	remaining, err := svc.Remaining(ctx, "cp:north")
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(20)), "remaining = %s", remaining)
}

func TestAllocateOverCapacityReportsLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Open(ctx, "cp:north", models.PoolCollectionPoint, decimal.NewFromInt(20))
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, "cp:north", decimal.NewFromInt(25))
	require.ErrorIs(t, err, models.ErrAmountExceedsAvailable)

	var capErr *models.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.True(t, capErr.Limit.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "requested 25L, only 20L remaining", capErr.Error())

	pool, err := svc.Snapshot(ctx, "cp:north")
	require.NoError(t, err)
	assert.True(t, pool.Committed.IsZero(), "failed allocation must not commit")
}

func TestAllocateRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Open(ctx, "batch:b1", models.PoolStockBatch, decimal.NewFromInt(10))
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, "batch:b1", decimal.Zero)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = svc.Allocate(ctx, "batch:b1", decimal.NewFromInt(-3))
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestAllocateUnknownPool(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Allocate(context.Background(), "cp:missing", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, models.ErrPoolNotFound)
}

func TestReleaseReturnsAmountOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Open(ctx, "cp:north", models.PoolCollectionPoint, decimal.NewFromInt(50))
	require.NoError(t, err)

	id, err := svc.Allocate(ctx, "cp:north", decimal.NewFromInt(40))
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, id))
	remaining, err := svc.Remaining(ctx, "cp:north")
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(50)))

	err = svc.Release(ctx, id)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)

	remaining, err = svc.Remaining(ctx, "cp:north")
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(50)), "double release must not credit twice")
}

func TestClosedPoolRefusesAllocation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := svc.Open(ctx, "carrier:c1", models.PoolCarrierAllocation, decimal.NewFromInt(30))
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return CloseTx(ctx, tx, "carrier:c1", time.Now())
	})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, "carrier:c1", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, models.ErrPoolClosed)

	pool, err := svc.Snapshot(ctx, "carrier:c1")
	require.NoError(t, err)
	assert.True(t, pool.Available().IsZero())
}

func TestGrowOpensPoolOnFirstUse(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	err := store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := GrowTx(ctx, tx, "cp:south", models.PoolCollectionPoint, decimal.NewFromInt(12), time.Now()); err != nil {
			return err
		}
		_, err := GrowTx(ctx, tx, "cp:south", models.PoolCollectionPoint, decimal.NewFromInt(8), time.Now())
		return err
	})
	require.NoError(t, err)

	pool, err := svc.Snapshot(ctx, "cp:south")
	require.NoError(t, err)
	assert.True(t, pool.Source.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, int64(2), pool.Version)
}

func TestConcurrentAllocationsNeverOvercommit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Open(ctx, "batch:b1", models.PoolStockBatch, decimal.NewFromInt(100))
	require.NoError(t, err)

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Allocate(ctx, "batch:b1", decimal.NewFromInt(7)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, models.ErrAmountExceedsAvailable)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 14, succeeded)
	pool, err := svc.Snapshot(ctx, "batch:b1")
	require.NoError(t, err)
	assert.True(t, pool.Committed.LessThanOrEqual(pool.Source))
	assert.True(t, pool.Remaining().Equal(decimal.NewFromInt(2)))
}

// staleTx hides existing pools, like a snapshot taken before another
// transaction opened them.
type staleTx struct {
	repository.Tx
}

func (s staleTx) GetPool(_ context.Context, id string) (models.Pool, error) {
	return models.Pool{}, fmt.Errorf("%w: %s", models.ErrPoolNotFound, id)
}

func TestGrowReplaysWhenPoolOpenedConcurrently(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := svc.Open(ctx, "cp:north", models.PoolCollectionPoint, decimal.NewFromInt(40))
	require.NoError(t, err)

	attempts := 0
	err = repository.Transact(ctx, store, repository.DefaultMaxRetries, func(ctx context.Context, tx repository.Tx) error {
		attempts++
		var view repository.Tx = tx
		if attempts == 1 {
			view = staleTx{Tx: tx}
		}
		_, err := GrowTx(ctx, view, "cp:north", models.PoolCollectionPoint, decimal.NewFromInt(10), time.Now())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	pool, err := svc.Snapshot(ctx, "cp:north")
	require.NoError(t, err)
	assert.True(t, pool.Source.Equal(decimal.NewFromInt(50)), "source = %s", pool.Source)
}

func TestOpenExistingPool(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Open(ctx, "cp:north", models.PoolCollectionPoint, decimal.NewFromInt(40))
	require.NoError(t, err)

	_, err = svc.Open(ctx, "cp:north", models.PoolCollectionPoint, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
