package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyReport is the reconciliation snapshot of every hop of the chain.
type DailyReport struct {
	Date              time.Time       `json:"date" bson:"date"`
	AcceptedLiters    decimal.Decimal `json:"accepted_liters" bson:"accepted_liters"`
	AllocatedLiters   decimal.Decimal `json:"allocated_liters" bson:"allocated_liters"`
	UnallocatedLiters decimal.Decimal `json:"unallocated_liters" bson:"unallocated_liters"`
	ReceivedLiters    decimal.Decimal `json:"received_liters" bson:"received_liters"`
	StockIn           decimal.Decimal `json:"stock_in" bson:"stock_in"`
	StockOut          decimal.Decimal `json:"stock_out" bson:"stock_out"`
	PaymentsTotal     decimal.Decimal `json:"payments_total" bson:"payments_total"`
	PaymentsCount     int             `json:"payments_count" bson:"payments_count"`
	Pending           PendingCounts   `json:"pending" bson:"pending"`
	CreatedAt         time.Time       `json:"created_at" bson:"created_at"`
}

// PendingCounts is the number of records at each hop still awaiting a decision.
type PendingCounts struct {
	Submissions        int `json:"submissions" bson:"submissions"`
	CarrierAllocations int `json:"carrier_allocations" bson:"carrier_allocations"`
	Receipts           int `json:"receipts" bson:"receipts"`
	Consumptions       int `json:"consumptions" bson:"consumptions"`
}

func (p PendingCounts) Total() int {
	return p.Submissions + p.CarrierAllocations + p.Receipts + p.Consumptions
}
