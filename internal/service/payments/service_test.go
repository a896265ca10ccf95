package payments

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
	"github.com/mamadbah2/milkledger/internal/repository/memory"
)

var testNow = time.Date(2026, 4, 21, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	payments []models.Payment
	due      []models.PayableBalance
}

func (n *recordingNotifier) NotifyPaymentRecorded(_ context.Context, payment models.Payment) error {
	n.payments = append(n.payments, payment)
	return nil
}

func (n *recordingNotifier) NotifyPaymentDue(_ context.Context, balance models.PayableBalance) error {
	n.due = append(n.due, balance)
	return nil
}

func newTestService(t *testing.T, notifier Notifier) (*Service, *memory.Store, *memory.CreditLedger) {
	t.Helper()
	store := memory.NewStore()
	credits := memory.NewCreditLedger()
	svc := NewService(store, credits, Config{
		UnitPrice:  decimal.NewFromInt(400),
		CycleDays:  15,
		MaxRetries: repository.DefaultMaxRetries,
	}, notifier, nil)
	svc.now = func() time.Time { return testNow }
	return svc, store, credits
}

func seedSubmission(t *testing.T, store *memory.Store, producerID string, liters int64, status models.Status, daysAgo int) {
	t.Helper()
	at := testNow.AddDate(0, 0, -daysAgo)
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertSubmission(ctx, models.Submission{
			ID:                producerID + "-" + at.Format(time.RFC3339Nano) + "-" + string(status),
			ProducerID:        producerID,
			CollectionPointID: "north",
			MilkType:          "cow",
			DeclaredAmount:    decimal.NewFromInt(liters),
			ActualAmount:      decimal.NewFromInt(liters),
			Status:            status,
			SubmittedAt:       at,
		})
	})
	require.NoError(t, err)
}

func TestScenarioPaymentLifecycle(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, store, credits := newTestService(t, notifier)
	ctx := context.Background()

	seedSubmission(t, store, "p1", 60, models.StatusAccepted, 25)
	seedSubmission(t, store, "p1", 40, models.StatusAccepted, 20)
	seedSubmission(t, store, "p1", 500, models.StatusRejected, 18)
	credits.Add(models.CreditAdvance{ID: "a1", ProducerID: "p1", Amount: decimal.NewFromInt(10000), Status: "Approved"})

	balance, err := svc.ComputeBalance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, balance.AcceptedAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, balance.Gross.Equal(decimal.NewFromInt(40000)))
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(30000)), "balance = %s", balance.Balance)
	require.NotNil(t, balance.LastAcceptedAt)

	due, err := svc.IsPaymentDue(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, due)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	payment, err := svc.RecordPayment(ctx, "p1", decimal.NewFromInt(30000), start, end)
	require.NoError(t, err)
	assert.Equal(t, "p1", payment.ProducerID)
	require.Len(t, notifier.payments, 1)

	_, err = svc.RecordPayment(ctx, "p1", decimal.NewFromInt(1), start, end)
	assert.ErrorIs(t, err, models.ErrDuplicatePaymentPeriod)

	balance, err = svc.ComputeBalance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, balance.Paid.Equal(decimal.NewFromInt(30000)))
	assert.True(t, balance.Outstanding.IsZero())
	assert.Len(t, notifier.payments, 1)
}

func TestNeverDueWithoutAcceptedSubmissions(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	due, err := svc.IsPaymentDue(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, due)

	seedSubmission(t, store, "p2", 30, models.StatusPending, 40)
	due, err = svc.IsPaymentDue(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, due)

	_, err = svc.RecordPayment(ctx, "p2", decimal.NewFromInt(10), testNow.AddDate(0, -1, 0), testNow)
	assert.ErrorIs(t, err, models.ErrPaymentNotDue)
}

func TestDueThresholdUsesLatestAccepted(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	seedSubmission(t, store, "p1", 10, models.StatusAccepted, 30)
	seedSubmission(t, store, "p1", 10, models.StatusAccepted, 14)

	due, err := svc.IsPaymentDue(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, due, "14 days is inside the cycle")

	svc.now = func() time.Time { return testNow.AddDate(0, 0, 1) }
	due, err = svc.IsPaymentDue(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, due, "15 days reaches the cycle")
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()
	seedSubmission(t, store, "p1", 10, models.StatusAccepted, 20)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordPayment(ctx, "p1", decimal.Zero, start, start)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = svc.RecordPayment(ctx, "p1", decimal.NewFromInt(1), start, start.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, models.ErrInvalidPeriod)

	_, err = svc.RecordPayment(ctx, "p1", decimal.NewFromInt(4001), start, start.AddDate(0, 0, 14))
	assert.ErrorIs(t, err, models.ErrAmountExceedsAvailable)
}

func TestAdjacentPeriodsDoNotOverlap(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()
	seedSubmission(t, store, "p1", 100, models.StatusAccepted, 20)

	first := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordPayment(ctx, "p1", decimal.NewFromInt(1000), first, first.AddDate(0, 0, 14))
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, "p1", decimal.NewFromInt(1000), first.AddDate(0, 0, 14), first.AddDate(0, 0, 30))
	assert.ErrorIs(t, err, models.ErrDuplicatePaymentPeriod, "shared boundary day overlaps")

	_, err = svc.RecordPayment(ctx, "p1", decimal.NewFromInt(1000), first.AddDate(0, 0, 15), first.AddDate(0, 0, 30))
	assert.NoError(t, err)
}

func TestDueProducers(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, store, _ := newTestService(t, notifier)
	ctx := context.Background()

	seedSubmission(t, store, "p1", 10, models.StatusAccepted, 20)
	seedSubmission(t, store, "p2", 10, models.StatusAccepted, 3)
	seedSubmission(t, store, "p3", 10, models.StatusAccepted, 16)

	due, err := svc.DueProducers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, due)

	balance, err := svc.ComputeBalance(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, svc.NotifyDue(ctx, balance))
	require.Len(t, notifier.due, 1)
	assert.Equal(t, "p1", notifier.due[0].ProducerID)
}
