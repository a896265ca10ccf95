package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
)

func seedPool(t *testing.T, store *Store, id string, source int64) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertPool(ctx, models.Pool{
			ID:        id,
			Kind:      models.PoolStockBatch,
			Source:    decimal.NewFromInt(source),
			Committed: decimal.Zero,
			Version:   1,
		})
	})
	require.NoError(t, err)
}

func TestWithTxDiscardsWritesOnError(t *testing.T) {
	store := NewStore()
	seedPool(t, store, "batch:b1", 10)

	boom := errors.New("boom")
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		pool, err := tx.GetPool(ctx, "batch:b1")
		require.NoError(t, err)
		pool.Committed = decimal.NewFromInt(4)
		require.NoError(t, tx.UpdatePool(ctx, pool, pool.Version))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		pool, err := tx.GetPool(ctx, "batch:b1")
		require.NoError(t, err)
		assert.True(t, pool.Committed.IsZero())
		assert.Equal(t, int64(1), pool.Version)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdatePoolChecksVersion(t *testing.T) {
	store := NewStore()
	seedPool(t, store, "batch:b1", 10)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		pool, err := tx.GetPool(ctx, "batch:b1")
		if err != nil {
			return err
		}
		return tx.UpdatePool(ctx, pool, pool.Version+1)
	})
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
}

func TestInsertPoolTwiceIsConflict(t *testing.T) {
	store := NewStore()
	seedPool(t, store, "cp:north", 10)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertPool(ctx, models.Pool{ID: "cp:north", Kind: models.PoolCollectionPoint, Version: 1})
	})
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
}

func TestUpdateSubmissionChecksStatus(t *testing.T) {
	store := NewStore()
	submission := models.Submission{ID: "s1", ProducerID: "p1", Status: models.StatusPending, SubmittedAt: time.Now()}
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertSubmission(ctx, submission)
	}))

	accepted := submission
	accepted.Status = models.StatusAccepted
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdateSubmission(ctx, accepted, models.StatusPending)
	}))

	rejected := submission
	rejected.Status = models.StatusRejected
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdateSubmission(ctx, rejected, models.StatusPending)
	})
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
}

func TestGetMissingRecords(t *testing.T) {
	store := NewStore()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetPool(ctx, "cp:none")
		assert.ErrorIs(t, err, models.ErrPoolNotFound)

		_, err = tx.GetSubmission(ctx, "none")
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = tx.GetCarrierAllocation(ctx, "none")
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = tx.GetConsumption(ctx, "none")
		assert.ErrorIs(t, err, models.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestListProducersWithStatus(t *testing.T) {
	store := NewStore()
	now := time.Now()
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		for _, s := range []models.Submission{
			{ID: "1", ProducerID: "p2", Status: models.StatusAccepted, SubmittedAt: now},
			{ID: "2", ProducerID: "p1", Status: models.StatusAccepted, SubmittedAt: now},
			{ID: "3", ProducerID: "p2", Status: models.StatusAccepted, SubmittedAt: now},
			{ID: "4", ProducerID: "p3", Status: models.StatusPending, SubmittedAt: now},
		} {
			if err := tx.InsertSubmission(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}))

	var producers []string
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		producers, err = tx.ListProducersWithStatus(ctx, models.StatusAccepted)
		return err
	}))
	assert.Equal(t, []string{"p1", "p2"}, producers)
}

func TestClosedStoreRefusesTransactions(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Close(context.Background()))
	err := store.WithTx(context.Background(), func(context.Context, repository.Tx) error { return nil })
	assert.Error(t, err)
}

func TestCreditLedgerSumsApprovedOnly(t *testing.T) {
	ledger := NewCreditLedger()
	ledger.Add(models.CreditAdvance{ID: "a1", ProducerID: "p1", Amount: decimal.NewFromInt(6000), Status: "Approved"})
	ledger.Add(models.CreditAdvance{ID: "a2", ProducerID: "p1", Amount: decimal.NewFromInt(4000), Status: "approved"})
	ledger.Add(models.CreditAdvance{ID: "a3", ProducerID: "p1", Amount: decimal.NewFromInt(9000), Status: "pending"})
	ledger.Add(models.CreditAdvance{ID: "a4", ProducerID: "p2", Amount: decimal.NewFromInt(500), Status: "approved"})

	total, err := ledger.ApprovedAdvances(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(10000)), "total = %s", total)
}
