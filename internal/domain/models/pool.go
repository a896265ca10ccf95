package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolKind identifies which hop of the chain a pool belongs to.
type PoolKind string

const (
	PoolCollectionPoint   PoolKind = "collection_point"
	PoolCarrierAllocation PoolKind = "carrier_allocation"
	PoolStockBatch        PoolKind = "stock_batch"
)

// Unit is the suffix used when quantities of this pool are shown to people.
func (k PoolKind) Unit() string {
	if k == PoolStockBatch {
		return ""
	}
	return "L"
}

// Pool tracks a source quantity and how much of it has been committed downstream.
type Pool struct {
	ID        string          `json:"id" bson:"_id"`
	Kind      PoolKind        `json:"kind" bson:"kind"`
	Source    decimal.Decimal `json:"source" bson:"source"`
	Committed decimal.Decimal `json:"committed" bson:"committed"`
	Closed    bool            `json:"closed" bson:"closed"`
	Version   int64           `json:"version" bson:"version"`
	UpdatedAt time.Time       `json:"updated_at" bson:"updated_at"`
}

// Remaining is Source minus Committed.
func (p Pool) Remaining() decimal.Decimal {
	return p.Source.Sub(p.Committed)
}

// Available is what a new allocation may still draw; zero once the pool is closed.
func (p Pool) Available() decimal.Decimal {
	if p.Closed {
		return decimal.Zero
	}
	return p.Remaining()
}

// Allocation is one committed draw against a pool.
type Allocation struct {
	ID         string          `json:"id" bson:"_id"`
	PoolID     string          `json:"pool_id" bson:"pool_id"`
	Amount     decimal.Decimal `json:"amount" bson:"amount"`
	Released   bool            `json:"released" bson:"released"`
	CreatedAt  time.Time       `json:"created_at" bson:"created_at"`
	ReleasedAt *time.Time      `json:"released_at,omitempty" bson:"released_at,omitempty"`
}

// CollectionPointPoolID is the pool fed by accepted submissions at a collection point.
func CollectionPointPoolID(collectionPointID string) string {
	return "cp:" + collectionPointID
}

// CarrierPoolID is the pool a processing facility receives against.
func CarrierPoolID(carrierAllocationID string) string {
	return "carrier:" + carrierAllocationID
}

// BatchPoolID is the pool stock-outs draw from.
func BatchPoolID(batchID string) string {
	return "batch:" + batchID
}
