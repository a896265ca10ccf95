// Package memory is an in-process ledger store. Transactions are serialized and
// stage their writes on a private copy that replaces the live state on commit.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
)

var (
	_ repository.Store            = (*Store)(nil)
	_ repository.ReportRepository = (*Store)(nil)
	_ repository.Tx               = (*tx)(nil)
)

var (
	errClosed    = errors.New("memory store closed")
	errDuplicate = errors.New("duplicate id")
)

type state struct {
	pools        map[string]models.Pool
	allocations  map[string]models.Allocation
	submissions  map[string]models.Submission
	carriers     map[string]models.CarrierAllocation
	receipts     map[string]models.ProcessingReceipt
	batches      map[string]models.StockBatch
	consumptions map[string]models.StockConsumption
	payments     map[string]models.Payment
	accounts     map[string]int64
}

func newState() *state {
	return &state{
		pools:        make(map[string]models.Pool),
		allocations:  make(map[string]models.Allocation),
		submissions:  make(map[string]models.Submission),
		carriers:     make(map[string]models.CarrierAllocation),
		receipts:     make(map[string]models.ProcessingReceipt),
		batches:      make(map[string]models.StockBatch),
		consumptions: make(map[string]models.StockConsumption),
		payments:     make(map[string]models.Payment),
		accounts:     make(map[string]int64),
	}
}

func (s *state) clone() *state {
	return &state{
		pools:        maps.Clone(s.pools),
		allocations:  maps.Clone(s.allocations),
		submissions:  maps.Clone(s.submissions),
		carriers:     maps.Clone(s.carriers),
		receipts:     maps.Clone(s.receipts),
		batches:      maps.Clone(s.batches),
		consumptions: maps.Clone(s.consumptions),
		payments:     maps.Clone(s.payments),
		accounts:     maps.Clone(s.accounts),
	}
}

// Store is a mutex-guarded ledger kept in process memory.
type Store struct {
	mu      sync.Mutex
	state   *state
	reports []models.DailyReport
	closed  bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithTx runs fn against a private copy of the ledger and publishes it only on success.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}

	staged := &tx{state: s.state.clone()}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = staged.state
	return nil
}

// SaveDailyReport keeps the snapshot in memory.
func (s *Store) SaveDailyReport(ctx context.Context, report models.DailyReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

// Reports returns the saved snapshots in insertion order.
func (s *Store) Reports() []models.DailyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reports)
}

// Close marks the store unusable.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	state *state
}

func (t *tx) GetPool(_ context.Context, id string) (models.Pool, error) {
	pool, ok := t.state.pools[id]
	if !ok {
		return models.Pool{}, fmt.Errorf("%w: %s", models.ErrPoolNotFound, id)
	}
	return pool, nil
}

func (t *tx) InsertPool(_ context.Context, pool models.Pool) error {
	if _, ok := t.state.pools[pool.ID]; ok {
		return fmt.Errorf("insert pool %s: %w", pool.ID, models.ErrConcurrentModification)
	}
	t.state.pools[pool.ID] = pool
	return nil
}

func (t *tx) UpdatePool(_ context.Context, pool models.Pool, expectedVersion int64) error {
	current, ok := t.state.pools[pool.ID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrPoolNotFound, pool.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("pool %s: %w", pool.ID, models.ErrConcurrentModification)
	}
	pool.Version = expectedVersion + 1
	t.state.pools[pool.ID] = pool
	return nil
}

func (t *tx) ListPools(_ context.Context, kind models.PoolKind) ([]models.Pool, error) {
	var out []models.Pool
	for _, pool := range t.state.pools {
		if kind == "" || pool.Kind == kind {
			out = append(out, pool)
		}
	}
	slices.SortFunc(out, func(a, b models.Pool) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) GetAllocation(_ context.Context, id string) (models.Allocation, error) {
	allocation, ok := t.state.allocations[id]
	if !ok {
		return models.Allocation{}, fmt.Errorf("allocation %s: %w", id, models.ErrNotFound)
	}
	return allocation, nil
}

func (t *tx) InsertAllocation(_ context.Context, allocation models.Allocation) error {
	if _, ok := t.state.allocations[allocation.ID]; ok {
		return fmt.Errorf("insert allocation %s: %w", allocation.ID, errDuplicate)
	}
	t.state.allocations[allocation.ID] = allocation
	return nil
}

func (t *tx) UpdateAllocation(_ context.Context, allocation models.Allocation) error {
	if _, ok := t.state.allocations[allocation.ID]; !ok {
		return fmt.Errorf("allocation %s: %w", allocation.ID, models.ErrNotFound)
	}
	t.state.allocations[allocation.ID] = allocation
	return nil
}

func (t *tx) GetSubmission(_ context.Context, id string) (models.Submission, error) {
	submission, ok := t.state.submissions[id]
	if !ok {
		return models.Submission{}, fmt.Errorf("submission %s: %w", id, models.ErrNotFound)
	}
	return submission, nil
}

func (t *tx) InsertSubmission(_ context.Context, submission models.Submission) error {
	if _, ok := t.state.submissions[submission.ID]; ok {
		return fmt.Errorf("insert submission %s: %w", submission.ID, errDuplicate)
	}
	t.state.submissions[submission.ID] = submission
	return nil
}

func (t *tx) UpdateSubmission(_ context.Context, submission models.Submission, from models.Status) error {
	current, ok := t.state.submissions[submission.ID]
	if !ok {
		return fmt.Errorf("submission %s: %w", submission.ID, models.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("submission %s: %w", submission.ID, models.ErrConcurrentModification)
	}
	t.state.submissions[submission.ID] = submission
	return nil
}

func (t *tx) ListSubmissionsByProducer(_ context.Context, producerID string, status models.Status) ([]models.Submission, error) {
	var out []models.Submission
	for _, submission := range t.state.submissions {
		if submission.ProducerID != producerID {
			continue
		}
		if status != "" && submission.Status != status {
			continue
		}
		out = append(out, submission)
	}
	slices.SortFunc(out, func(a, b models.Submission) int {
		return cmp.Or(a.SubmittedAt.Compare(b.SubmittedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (t *tx) ListProducersWithStatus(_ context.Context, status models.Status) ([]string, error) {
	seen := make(map[string]struct{})
	for _, submission := range t.state.submissions {
		if submission.Status == status {
			seen[submission.ProducerID] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (t *tx) GetCarrierAllocation(_ context.Context, id string) (models.CarrierAllocation, error) {
	allocation, ok := t.state.carriers[id]
	if !ok {
		return models.CarrierAllocation{}, fmt.Errorf("carrier allocation %s: %w", id, models.ErrNotFound)
	}
	return allocation, nil
}

func (t *tx) InsertCarrierAllocation(_ context.Context, allocation models.CarrierAllocation) error {
	if _, ok := t.state.carriers[allocation.ID]; ok {
		return fmt.Errorf("insert carrier allocation %s: %w", allocation.ID, errDuplicate)
	}
	t.state.carriers[allocation.ID] = allocation
	return nil
}

func (t *tx) UpdateCarrierAllocation(_ context.Context, allocation models.CarrierAllocation, from models.Status) error {
	current, ok := t.state.carriers[allocation.ID]
	if !ok {
		return fmt.Errorf("carrier allocation %s: %w", allocation.ID, models.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("carrier allocation %s: %w", allocation.ID, models.ErrConcurrentModification)
	}
	t.state.carriers[allocation.ID] = allocation
	return nil
}

func (t *tx) GetReceipt(_ context.Context, id string) (models.ProcessingReceipt, error) {
	receipt, ok := t.state.receipts[id]
	if !ok {
		return models.ProcessingReceipt{}, fmt.Errorf("processing receipt %s: %w", id, models.ErrNotFound)
	}
	return receipt, nil
}

func (t *tx) InsertReceipt(_ context.Context, receipt models.ProcessingReceipt) error {
	if _, ok := t.state.receipts[receipt.ID]; ok {
		return fmt.Errorf("insert processing receipt %s: %w", receipt.ID, errDuplicate)
	}
	t.state.receipts[receipt.ID] = receipt
	return nil
}

func (t *tx) UpdateReceipt(_ context.Context, receipt models.ProcessingReceipt, from models.Status) error {
	current, ok := t.state.receipts[receipt.ID]
	if !ok {
		return fmt.Errorf("processing receipt %s: %w", receipt.ID, models.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("processing receipt %s: %w", receipt.ID, models.ErrConcurrentModification)
	}
	t.state.receipts[receipt.ID] = receipt
	return nil
}

func (t *tx) GetBatch(_ context.Context, id string) (models.StockBatch, error) {
	batch, ok := t.state.batches[id]
	if !ok {
		return models.StockBatch{}, fmt.Errorf("stock batch %s: %w", id, models.ErrNotFound)
	}
	return batch, nil
}

func (t *tx) InsertBatch(_ context.Context, batch models.StockBatch) error {
	if _, ok := t.state.batches[batch.ID]; ok {
		return fmt.Errorf("insert stock batch %s: %w", batch.ID, errDuplicate)
	}
	t.state.batches[batch.ID] = batch
	return nil
}

func (t *tx) ListBatchesByProduct(_ context.Context, productID string) ([]models.StockBatch, error) {
	var out []models.StockBatch
	for _, batch := range t.state.batches {
		if batch.ProductID == productID {
			out = append(out, batch)
		}
	}
	slices.SortFunc(out, func(a, b models.StockBatch) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (t *tx) GetConsumption(_ context.Context, id string) (models.StockConsumption, error) {
	consumption, ok := t.state.consumptions[id]
	if !ok {
		return models.StockConsumption{}, fmt.Errorf("stock consumption %s: %w", id, models.ErrNotFound)
	}
	return consumption, nil
}

func (t *tx) InsertConsumption(_ context.Context, consumption models.StockConsumption) error {
	if _, ok := t.state.consumptions[consumption.ID]; ok {
		return fmt.Errorf("insert stock consumption %s: %w", consumption.ID, errDuplicate)
	}
	t.state.consumptions[consumption.ID] = consumption
	return nil
}

func (t *tx) UpdateConsumption(_ context.Context, consumption models.StockConsumption, from models.Status) error {
	current, ok := t.state.consumptions[consumption.ID]
	if !ok {
		return fmt.Errorf("stock consumption %s: %w", consumption.ID, models.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("stock consumption %s: %w", consumption.ID, models.ErrConcurrentModification)
	}
	t.state.consumptions[consumption.ID] = consumption
	return nil
}

func (t *tx) ListConsumptionsByProduct(_ context.Context, productID string) ([]models.StockConsumption, error) {
	var out []models.StockConsumption
	for _, consumption := range t.state.consumptions {
		if consumption.ProductID == productID {
			out = append(out, consumption)
		}
	}
	slices.SortFunc(out, func(a, b models.StockConsumption) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (t *tx) InsertPayment(_ context.Context, payment models.Payment) error {
	if _, ok := t.state.payments[payment.ID]; ok {
		return fmt.Errorf("insert payment %s: %w", payment.ID, errDuplicate)
	}
	t.state.payments[payment.ID] = payment
	return nil
}

func (t *tx) ListPaymentsByProducer(_ context.Context, producerID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, payment := range t.state.payments {
		if payment.ProducerID == producerID {
			out = append(out, payment)
		}
	}
	slices.SortFunc(out, comparePayments)
	return out, nil
}

func (t *tx) ListPaymentsBetween(_ context.Context, from, to time.Time) ([]models.Payment, error) {
	var out []models.Payment
	for _, payment := range t.state.payments {
		if payment.CreatedAt.Before(from) || !payment.CreatedAt.Before(to) {
			continue
		}
		out = append(out, payment)
	}
	slices.SortFunc(out, comparePayments)
	return out, nil
}

func (t *tx) LockProducer(_ context.Context, producerID string) error {
	t.state.accounts[producerID]++
	return nil
}

func comparePayments(a, b models.Payment) int {
	return cmp.Or(a.PeriodStart.Compare(b.PeriodStart), cmp.Compare(a.ID, b.ID))
}

func (t *tx) CountPending(_ context.Context) (models.PendingCounts, error) {
	var counts models.PendingCounts
	for _, s := range t.state.submissions {
		if s.Status == models.StatusPending {
			counts.Submissions++
		}
	}
	for _, c := range t.state.carriers {
		if c.Status == models.StatusPending {
			counts.CarrierAllocations++
		}
	}
	for _, r := range t.state.receipts {
		if r.Status == models.StatusPending {
			counts.Receipts++
		}
	}
	for _, c := range t.state.consumptions {
		if c.Status == models.StatusPending {
			counts.Consumptions++
		}
	}
	return counts, nil
}
