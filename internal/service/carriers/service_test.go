package carriers

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
	"github.com/mamadbah2/milkledger/internal/repository/memory"
	"github.com/mamadbah2/milkledger/internal/service/allocation"
	"github.com/mamadbah2/milkledger/internal/service/submissions"
)

type fixture struct {
	store       *memory.Store
	carriers    *Service
	submissions *submissions.Service
	pools       *allocation.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	return fixture{
		store:    store,
		carriers: NewService(store, repository.DefaultMaxRetries, nil),
		submissions: submissions.NewService(store, submissions.Config{
			QuantityTolerance: decimal.RequireFromString("0.10"),
			MaxRetries:        repository.DefaultMaxRetries,
		}, nil, nil),
		pools: allocation.NewService(store, repository.DefaultMaxRetries, nil),
	}
}

func (f fixture) accept(t *testing.T, collectionPointID string, liters int64) {
	t.Helper()
	ctx := context.Background()
	submission, err := f.submissions.Submit(ctx, "producer-1", collectionPointID, "cow", decimal.NewFromInt(liters))
	require.NoError(t, err)
	_, _, err = f.submissions.Resolve(ctx, submission.ID, submissions.Resolution{Decision: models.DecisionAccept})
	require.NoError(t, err)
}

func TestAssignBoundedByCollectionPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t, "north", 50)

	first, err := f.carriers.Assign(ctx, "carrier-x", "north", decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, first.Status)

	remaining, err := f.pools.Remaining(ctx, models.CollectionPointPoolID("north"))
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(20)))

	_, err = f.carriers.Assign(ctx, "carrier-x", "north", decimal.NewFromInt(25))
	require.ErrorIs(t, err, models.ErrAmountExceedsAvailable)
	var capErr *models.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.True(t, capErr.Limit.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "requested 25L, only 20L remaining", capErr.Error())

	remaining, err = f.pools.Remaining(ctx, models.CollectionPointPoolID("north"))
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(20)), "refused assignment must not commit")
}

func TestAssignWithoutAcceptedMilk(t *testing.T) {
	f := newFixture(t)
	_, err := f.carriers.Assign(context.Background(), "carrier-x", "empty", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, models.ErrPoolNotFound)
}

func TestAssignOpensTripPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t, "north", 50)

	trip, err := f.carriers.Assign(ctx, "carrier-x", "north", decimal.NewFromInt(30))
	require.NoError(t, err)

	remaining, err := f.carriers.RemainingFor(ctx, trip.ID)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(30)))
}

func TestRejectReleasesToCollectionPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t, "north", 50)

	trip, err := f.carriers.Assign(ctx, "carrier-x", "north", decimal.NewFromInt(30))
	require.NoError(t, err)

	rejected, err := f.carriers.Reject(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)

	remaining, err := f.pools.Remaining(ctx, models.CollectionPointPoolID("north"))
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(50)))

	tripRemaining, err := f.carriers.RemainingFor(ctx, trip.ID)
	require.NoError(t, err)
	assert.True(t, tripRemaining.IsZero(), "rejected trip is closed")

	_, err = f.carriers.Reject(ctx, trip.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	remaining, err = f.pools.Remaining(ctx, models.CollectionPointPoolID("north"))
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(50)), "second reject must not release again")
}

func TestRejectRefusedWhenTripHasReceipts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t, "north", 50)

	trip, err := f.carriers.Assign(ctx, "carrier-x", "north", decimal.NewFromInt(30))
	require.NoError(t, err)
	_, err = f.pools.Allocate(ctx, models.CarrierPoolID(trip.ID), decimal.NewFromInt(10))
	require.NoError(t, err)

	_, err = f.carriers.Reject(ctx, trip.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	stored, err := f.carriers.Get(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestApproveIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t, "north", 50)

	trip, err := f.carriers.Assign(ctx, "carrier-x", "north", decimal.NewFromInt(30))
	require.NoError(t, err)

	approved, err := f.carriers.Approve(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, approved.Status)
	assert.True(t, approved.Amount.Equal(decimal.NewFromInt(30)))

	_, err = f.carriers.Approve(ctx, trip.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	_, err = f.carriers.Reject(ctx, trip.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)

	remaining, err := f.pools.Remaining(ctx, models.CollectionPointPoolID("north"))
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(20)))
}

func TestUnknownCarrierAllocation(t *testing.T) {
	f := newFixture(t)
	_, err := f.carriers.RemainingFor(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.carriers.Approve(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
