package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a payout to a producer covering an inclusive date range.
type Payment struct {
	ID          string          `json:"id" bson:"_id"`
	ProducerID  string          `json:"producer_id" bson:"producer_id"`
	Amount      decimal.Decimal `json:"amount" bson:"amount"`
	PeriodStart time.Time       `json:"period_start" bson:"period_start"`
	PeriodEnd   time.Time       `json:"period_end" bson:"period_end"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
}

// Overlaps reports whether both inclusive periods share at least one instant.
func (p Payment) Overlaps(start, end time.Time) bool {
	return !start.After(p.PeriodEnd) && !p.PeriodStart.After(end)
}

// PayableBalance is derived from accepted submissions and approved credit advances.
type PayableBalance struct {
	ProducerID     string          `json:"producer_id"`
	AcceptedAmount decimal.Decimal `json:"accepted_amount"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Gross          decimal.Decimal `json:"gross"`
	Advances       decimal.Decimal `json:"advances"`
	Balance        decimal.Decimal `json:"balance"`
	Paid           decimal.Decimal `json:"paid"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	LastAcceptedAt *time.Time      `json:"last_accepted_at,omitempty"`
}

// CreditStatusApproved is the only advance status counted against a balance.
const CreditStatusApproved = "approved"

// CreditAdvance is a loan or advance from the external credit ledger.
type CreditAdvance struct {
	ID         string          `json:"id" bson:"_id"`
	ProducerID string          `json:"producer_id" bson:"producer_id"`
	Amount     decimal.Decimal `json:"amount" bson:"amount"`
	Status     string          `json:"status" bson:"status"`
}
