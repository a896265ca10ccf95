package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/milkledger/internal/config"
	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/service/reporting"
)

const jobTimeout = 2 * time.Minute

// Reports exports reconciliation snapshots.
type Reports interface {
	ExportDailyReport(ctx context.Context, day time.Time) (models.DailyReport, error)
	WeeklySummary(ctx context.Context, end time.Time) (string, error)
}

// Payments finds producers whose payment cycle elapsed and tells someone about them.
type Payments interface {
	DueProducers(ctx context.Context) ([]string, error)
	ComputeBalance(ctx context.Context, producerID string) (models.PayableBalance, error)
	NotifyDue(ctx context.Context, balance models.PayableBalance) error
}

// Messenger delivers summaries to the cooperative manager.
type Messenger interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	reports   Reports
	payments  Payments
	messenger Messenger
	cfg       config.ReportingConfig
	manager   string
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance. messenger may be nil, in which
// case summaries are only logged.
func NewScheduler(cfg config.ReportingConfig, managerPhone string, reports Reports, payments Payments, messenger Messenger, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		reports:   reports,
		payments:  payments,
		messenger: messenger,
		cfg:       cfg,
		manager:   managerPhone,
		logger:    logger,
		now:       func() time.Time { return time.Now().In(loc) },
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context)
	}{
		{"daily_report", s.cfg.CronSchedule, s.runDailyReport},
		{"payment_scan", s.cfg.PaymentScanSchedule, s.runPaymentScan},
		{"weekly_report", s.cfg.WeeklySchedule, s.runWeeklyReport},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		run := job.run
		if _, err := s.cron.AddFunc(job.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			run(ctx)
		}); err != nil {
			return fmt.Errorf("schedule %s %q: %w", job.name, job.schedule, err)
		}
		s.logger.Info("job scheduled", zap.String("job", job.name), zap.String("schedule", job.schedule))
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runDailyReport(ctx context.Context) {
	if err := s.DailyReport(ctx); err != nil {
		s.logger.Error("daily report failed", zap.Error(err))
	}
}

func (s *Scheduler) runPaymentScan(ctx context.Context) {
	notified, err := s.ScanDuePayments(ctx)
	if err != nil {
		s.logger.Error("payment scan failed", zap.Error(err))
		return
	}
	s.logger.Info("payment scan finished", zap.Int("notified", notified))
}

func (s *Scheduler) runWeeklyReport(ctx context.Context) {
	if err := s.WeeklyReport(ctx); err != nil {
		s.logger.Error("weekly report failed", zap.Error(err))
	}
}

// DailyReport exports today's reconciliation snapshot and sends its summary to the manager.
func (s *Scheduler) DailyReport(ctx context.Context) error {
	s.logger.Info("generating daily report")

	report, err := s.reports.ExportDailyReport(ctx, s.now())
	if err != nil {
		return err
	}
	return s.sendToManager(ctx, reporting.DailySummary(report))
}

// WeeklyReport sends the week's payment summary to the manager.
func (s *Scheduler) WeeklyReport(ctx context.Context) error {
	s.logger.Info("generating weekly report")

	summary, err := s.reports.WeeklySummary(ctx, s.now())
	if err != nil {
		return err
	}
	return s.sendToManager(ctx, summary)
}

// ScanDuePayments notifies every producer whose payment is due and who is still
// owed money. It returns how many notifications went out.
func (s *Scheduler) ScanDuePayments(ctx context.Context) (int, error) {
	producers, err := s.payments.DueProducers(ctx)
	if err != nil {
		return 0, err
	}

	var notified int64
	limit := s.cfg.NotifyConcurrency
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, producerID := range producers {
		g.Go(func() error {
			balance, err := s.payments.ComputeBalance(gctx, producerID)
			if err != nil {
				return fmt.Errorf("balance for %s: %w", producerID, err)
			}
			if !balance.Outstanding.IsPositive() {
				return nil
			}
			if err := s.payments.NotifyDue(gctx, balance); err != nil {
				s.logger.Warn("payment due notification failed", zap.String("producer_id", producerID), zap.Error(err))
				return nil
			}
			atomic.AddInt64(&notified, 1)
			return nil
		})
	}

	err = g.Wait()
	return int(atomic.LoadInt64(&notified)), err
}

func (s *Scheduler) sendToManager(ctx context.Context, message string) error {
	if s.messenger == nil || s.manager == "" {
		s.logger.Info("summary", zap.String("message", message))
		return nil
	}

	if err := s.messenger.SendOutbound(ctx, models.OutboundMessageRequest{To: s.manager, Message: message}); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	s.logger.Info("summary sent", zap.String("to", s.manager))
	return nil
}
