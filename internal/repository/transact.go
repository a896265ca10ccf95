package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mamadbah2/milkledger/internal/domain/models"
)

// DefaultMaxRetries bounds how often a transaction that lost a version race is replayed.
const DefaultMaxRetries = 5

// Transact runs fn in a store transaction and replays it with exponential backoff
// while it fails with models.ErrConcurrentModification. Every other error is returned as is.
func Transact(ctx context.Context, store Store, maxRetries int, fn func(ctx context.Context, tx Tx) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 5 * time.Millisecond
	expo.MaxInterval = 200 * time.Millisecond
	expo.MaxElapsedTime = 5 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxRetries)), ctx)

	return backoff.Retry(func() error {
		err := store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrConcurrentModification) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
