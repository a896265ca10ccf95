package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/milkledger/internal/domain/models"
)

// CreditLedger holds credit advances in memory for development and tests.
type CreditLedger struct {
	mu       sync.RWMutex
	advances []models.CreditAdvance
}

// NewCreditLedger returns an empty credit ledger.
func NewCreditLedger() *CreditLedger {
	return &CreditLedger{}
}

// Add records an advance with the given status.
func (c *CreditLedger) Add(advance models.CreditAdvance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advances = append(c.advances, advance)
}

// ApprovedAdvances sums the approved advances of a producer.
func (c *CreditLedger) ApprovedAdvances(_ context.Context, producerID string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, advance := range c.advances {
		if advance.ProducerID == producerID && strings.EqualFold(advance.Status, models.CreditStatusApproved) {
			total = total.Add(advance.Amount)
		}
	}
	return total, nil
}
