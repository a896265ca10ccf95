package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockBatch is a quantity of product entering inventory.
type StockBatch struct {
	ID        string          `json:"id" bson:"_id"`
	ProductID string          `json:"product_id" bson:"product_id"`
	Amount    decimal.Decimal `json:"amount" bson:"amount"`
	CreatedAt time.Time       `json:"created_at" bson:"created_at"`
}

// StockConsumption draws inventory down against exactly one batch.
type StockConsumption struct {
	ID              string          `json:"id" bson:"_id"`
	StockBatchID    string          `json:"stock_batch_id" bson:"stock_batch_id"`
	ProductID       string          `json:"product_id" bson:"product_id"`
	AllocationID    string          `json:"allocation_id" bson:"allocation_id"`
	Amount          decimal.Decimal `json:"amount" bson:"amount"`
	LinkedReceiptID string          `json:"linked_receipt_id,omitempty" bson:"linked_receipt_id,omitempty"`
	Status          Status          `json:"status" bson:"status"`
	CreatedAt       time.Time       `json:"created_at" bson:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
}

// ProductBalance aggregates every batch of a product.
type ProductBalance struct {
	ProductID string          `json:"product_id"`
	StockIn   decimal.Decimal `json:"stock_in"`
	StockOut  decimal.Decimal `json:"stock_out"`
	Balance   decimal.Decimal `json:"balance"`
	Batches   int             `json:"batches"`
}
