// Package reporting builds reconciliation snapshots of the milk chain and pushes
// them to MongoDB and the cooperative's spreadsheet.
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
	"github.com/mamadbah2/milkledger/internal/repository/sheets"
)

const (
	dateLayout = "2006-01-02"
	sheetName  = "Reconciliation"
	dateColumn = sheetName + "!A:A"
	rowColumns = sheetName + "!A:J"
)

// Service computes reconciliation reports.
type Service struct {
	store   repository.Store
	reports repository.ReportRepository
	sheet   sheets.Repository
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires a reporting service. reports and sheet may be nil, which
// turns the matching export off.
func NewService(store repository.Store, reports repository.ReportRepository, sheet sheets.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, reports: reports, sheet: sheet, logger: logger, now: time.Now}
}

// BuildDailyReport snapshots every pool and the payments recorded on day.
// Pool figures are cumulative; payment figures cover that day only.
func (s *Service) BuildDailyReport(ctx context.Context, day time.Time) (models.DailyReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	report := models.DailyReport{
		Date:              start,
		AcceptedLiters:    decimal.Zero,
		AllocatedLiters:   decimal.Zero,
		UnallocatedLiters: decimal.Zero,
		ReceivedLiters:    decimal.Zero,
		StockIn:           decimal.Zero,
		StockOut:          decimal.Zero,
		PaymentsTotal:     decimal.Zero,
		CreatedAt:         s.now().UTC(),
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		pools, err := tx.ListPools(ctx, "")
		if err != nil {
			return fmt.Errorf("load pools: %w", err)
		}
		for _, pool := range pools {
			switch pool.Kind {
			case models.PoolCollectionPoint:
				report.AcceptedLiters = report.AcceptedLiters.Add(pool.Source)
				report.AllocatedLiters = report.AllocatedLiters.Add(pool.Committed)
				report.UnallocatedLiters = report.UnallocatedLiters.Add(pool.Remaining())
			case models.PoolCarrierAllocation:
				report.ReceivedLiters = report.ReceivedLiters.Add(pool.Committed)
			case models.PoolStockBatch:
				report.StockIn = report.StockIn.Add(pool.Source)
				report.StockOut = report.StockOut.Add(pool.Committed)
			}
		}

		payments, err := tx.ListPaymentsBetween(ctx, start, start.AddDate(0, 0, 1))
		if err != nil {
			return fmt.Errorf("load payments: %w", err)
		}
		for _, payment := range payments {
			report.PaymentsTotal = report.PaymentsTotal.Add(payment.Amount)
		}
		report.PaymentsCount = len(payments)

		report.Pending, err = tx.CountPending(ctx)
		if err != nil {
			return fmt.Errorf("count pending records: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.DailyReport{}, err
	}
	return report, nil
}

// ExportDailyReport builds the report for day, saves it and writes it to the
// spreadsheet. Exporting the same day twice overwrites that day's row.
func (s *Service) ExportDailyReport(ctx context.Context, day time.Time) (models.DailyReport, error) {
	report, err := s.BuildDailyReport(ctx, day)
	if err != nil {
		return models.DailyReport{}, err
	}

	if s.reports != nil {
		if err := s.reports.SaveDailyReport(ctx, report); err != nil {
			return models.DailyReport{}, fmt.Errorf("save daily report: %w", err)
		}
	}

	if s.sheet != nil {
		if err := s.writeSheetRow(ctx, report); err != nil {
			return models.DailyReport{}, err
		}
	}

	s.logger.Info("daily report exported",
		zap.String("date", report.Date.Format(dateLayout)),
		zap.String("accepted", report.AcceptedLiters.String()),
		zap.String("unallocated", report.UnallocatedLiters.String()))
	return report, nil
}

func (s *Service) writeSheetRow(ctx context.Context, report models.DailyReport) error {
	values := []interface{}{
		report.Date.Format(dateLayout),
		report.AcceptedLiters.String(),
		report.AllocatedLiters.String(),
		report.UnallocatedLiters.String(),
		report.ReceivedLiters.String(),
		report.StockIn.String(),
		report.StockOut.String(),
		report.PaymentsTotal.String(),
		report.PaymentsCount,
		report.Pending.Total(),
	}

	rows, err := s.sheet.ReadRange(ctx, dateColumn)
	if err != nil {
		return fmt.Errorf("load exported dates: %w", err)
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		exported, err := parseDate(row[0])
		if err != nil {
			s.logger.Debug("skip sheet row with invalid date", zap.Any("value", row[0]), zap.Error(err))
			continue
		}
		if exported.Equal(time.Date(report.Date.Year(), report.Date.Month(), report.Date.Day(), 0, 0, 0, 0, time.UTC)) {
			rowRange := fmt.Sprintf("%s!A%d:J%d", sheetName, i+1, i+1)
			if err := s.sheet.UpdateRow(ctx, rowRange, values); err != nil {
				return fmt.Errorf("update reconciliation row: %w", err)
			}
			return nil
		}
	}

	if err := s.sheet.AppendRow(ctx, rowColumns, values); err != nil {
		return fmt.Errorf("append reconciliation row: %w", err)
	}
	return nil
}

// DailySummary renders a report as a WhatsApp message.
func DailySummary(report models.DailyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Milk reconciliation %s\n", report.Date.Format(dateLayout))
	fmt.Fprintf(&b, "Accepted: %sL (assigned %sL, waiting %sL)\n",
		report.AcceptedLiters.StringFixed(1), report.AllocatedLiters.StringFixed(1), report.UnallocatedLiters.StringFixed(1))
	fmt.Fprintf(&b, "Received at plants: %sL\n", report.ReceivedLiters.StringFixed(1))
	fmt.Fprintf(&b, "Stock: %s in, %s out\n", report.StockIn.String(), report.StockOut.String())
	fmt.Fprintf(&b, "Payments today: %d for %s\n", report.PaymentsCount, report.PaymentsTotal.StringFixed(0))
	fmt.Fprintf(&b, "Awaiting approval: %d deliveries, %d trips, %d receipts, %d stock-outs",
		report.Pending.Submissions, report.Pending.CarrierAllocations, report.Pending.Receipts, report.Pending.Consumptions)
	return b.String()
}

// WeeklySummary totals payouts of the seven days ending at end and appends the
// current chain position.
func (s *Service) WeeklySummary(ctx context.Context, end time.Time) (string, error) {
	report, err := s.BuildDailyReport(ctx, end)
	if err != nil {
		return "", err
	}

	from := report.Date.AddDate(0, 0, -6)
	var (
		total = decimal.Zero
		count int
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		payments, err := tx.ListPaymentsBetween(ctx, from, report.Date.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		for _, payment := range payments {
			total = total.Add(payment.Amount)
		}
		count = len(payments)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("load weekly payments: %w", err)
	}

	if count == 0 {
		return fmt.Sprintf("Week %s-%s: no producer payments.\n%s",
			from.Format(dateLayout), report.Date.Format(dateLayout), DailySummary(report)), nil
	}
	return fmt.Sprintf("Week %s-%s: %d producer payments totalling %s.\n%s",
		from.Format(dateLayout), report.Date.Format(dateLayout), count, total.StringFixed(0), DailySummary(report)), nil
}

func parseDate(value interface{}) (time.Time, error) {
	str := fmt.Sprint(value)
	if str == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if len(str) > 10 {
		str = str[:10]
	}
	return time.Parse(dateLayout, str)
}
