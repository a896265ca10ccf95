// Package repository declares the ledger store ports shared by every service.
package repository

import (
	"context"
	"time"

	"github.com/mamadbah2/milkledger/internal/domain/models"
)

// Store runs callbacks as single atomic units against the ledger.
type Store interface {
	// WithTx commits every write made through tx when fn returns nil and
	// discards all of them otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close(ctx context.Context) error
}

// Tx is the transactional view handed to WithTx callbacks.
type Tx interface {
	PoolRepository
	SubmissionRepository
	TransportRepository
	StockRepository
	PaymentRepository
	PendingCounter
}

// PoolRepository persists pools and their allocations.
type PoolRepository interface {
	GetPool(ctx context.Context, id string) (models.Pool, error)
	InsertPool(ctx context.Context, pool models.Pool) error
	// UpdatePool writes pool only if the stored version still equals
	// expectedVersion, otherwise it returns models.ErrConcurrentModification.
	UpdatePool(ctx context.Context, pool models.Pool, expectedVersion int64) error
	ListPools(ctx context.Context, kind models.PoolKind) ([]models.Pool, error)

	GetAllocation(ctx context.Context, id string) (models.Allocation, error)
	InsertAllocation(ctx context.Context, allocation models.Allocation) error
	UpdateAllocation(ctx context.Context, allocation models.Allocation) error
}

// SubmissionRepository persists producer submissions.
type SubmissionRepository interface {
	GetSubmission(ctx context.Context, id string) (models.Submission, error)
	InsertSubmission(ctx context.Context, submission models.Submission) error
	// UpdateSubmission only succeeds while the stored status is still from.
	UpdateSubmission(ctx context.Context, submission models.Submission, from models.Status) error
	ListSubmissionsByProducer(ctx context.Context, producerID string, status models.Status) ([]models.Submission, error)
	ListProducersWithStatus(ctx context.Context, status models.Status) ([]string, error)
}

// TransportRepository persists carrier allocations and processing receipts.
type TransportRepository interface {
	GetCarrierAllocation(ctx context.Context, id string) (models.CarrierAllocation, error)
	InsertCarrierAllocation(ctx context.Context, allocation models.CarrierAllocation) error
	UpdateCarrierAllocation(ctx context.Context, allocation models.CarrierAllocation, from models.Status) error

	GetReceipt(ctx context.Context, id string) (models.ProcessingReceipt, error)
	InsertReceipt(ctx context.Context, receipt models.ProcessingReceipt) error
	UpdateReceipt(ctx context.Context, receipt models.ProcessingReceipt, from models.Status) error
}

// StockRepository persists stock batches and consumptions.
type StockRepository interface {
	GetBatch(ctx context.Context, id string) (models.StockBatch, error)
	InsertBatch(ctx context.Context, batch models.StockBatch) error
	ListBatchesByProduct(ctx context.Context, productID string) ([]models.StockBatch, error)

	GetConsumption(ctx context.Context, id string) (models.StockConsumption, error)
	InsertConsumption(ctx context.Context, consumption models.StockConsumption) error
	UpdateConsumption(ctx context.Context, consumption models.StockConsumption, from models.Status) error
	ListConsumptionsByProduct(ctx context.Context, productID string) ([]models.StockConsumption, error)
}

// PaymentRepository persists producer payments.
type PaymentRepository interface {
	InsertPayment(ctx context.Context, payment models.Payment) error
	ListPaymentsByProducer(ctx context.Context, producerID string) ([]models.Payment, error)
	ListPaymentsBetween(ctx context.Context, from, to time.Time) ([]models.Payment, error)
	// LockProducer bumps the producer account version so two transactions
	// paying the same producer cannot both commit.
	LockProducer(ctx context.Context, producerID string) error
}

// PendingCounter counts records still awaiting approval at every hop.
type PendingCounter interface {
	CountPending(ctx context.Context) (models.PendingCounts, error)
}

// ReportRepository stores reconciliation snapshots outside of ledger transactions.
type ReportRepository interface {
	SaveDailyReport(ctx context.Context, report models.DailyReport) error
}
