package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/config"
	"github.com/mamadbah2/milkledger/internal/repository"
	"github.com/mamadbah2/milkledger/internal/repository/memory"
	"github.com/mamadbah2/milkledger/internal/repository/mongodb"
	"github.com/mamadbah2/milkledger/internal/repository/sheets"
	"github.com/mamadbah2/milkledger/internal/scheduler"
	"github.com/mamadbah2/milkledger/internal/server/handlers"
	"github.com/mamadbah2/milkledger/internal/server/router"
	allocationsvc "github.com/mamadbah2/milkledger/internal/service/allocation"
	carriersvc "github.com/mamadbah2/milkledger/internal/service/carriers"
	commandsvc "github.com/mamadbah2/milkledger/internal/service/commands"
	paymentsvc "github.com/mamadbah2/milkledger/internal/service/payments"
	processingsvc "github.com/mamadbah2/milkledger/internal/service/processing"
	reportingsvc "github.com/mamadbah2/milkledger/internal/service/reporting"
	stocksvc "github.com/mamadbah2/milkledger/internal/service/stock"
	submissionsvc "github.com/mamadbah2/milkledger/internal/service/submissions"
	whatsappsvc "github.com/mamadbah2/milkledger/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/milkledger/pkg/clients/whatsapp"
	"github.com/mamadbah2/milkledger/pkg/logger"
)

type ledgerStore interface {
	repository.Store
	repository.ReportRepository
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level, cfg.Log.Environment))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx := context.Background()

	var (
		store   ledgerStore
		credits paymentsvc.CreditLedger
	)
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		store = memory.NewStore()
		credits = memory.NewCreditLedger()
		baseLogger.Warn("using in-memory store, data is lost on restart")
	default:
		mongoStore, err := mongodb.NewStore(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			baseLogger.Fatal("failed to ensure mongodb indexes", zap.Error(err))
		}
		store = mongoStore
		credits = mongoStore.Credits()
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close store", zap.Error(err))
		}
	}()

	var sheet sheets.Repository
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheet = sheetsRepo
	} else {
		baseLogger.Warn("google sheets credentials missing, spreadsheet export disabled")
	}

	var (
		notifier           *whatsappsvc.Notifier
		submissionNotifier submissionsvc.Notifier
		paymentNotifier    paymentsvc.Notifier
		messenger          scheduler.Messenger
	)
	if cfg.WhatsApp.Enabled() {
		notifier = whatsappsvc.NewNotifier(whatsappclient.NewClient(cfg.WhatsApp), cfg.WhatsApp.ManagerPhone, baseLogger.Named("svc.notifier"))
		submissionNotifier, paymentNotifier, messenger = notifier, notifier, notifier
	} else {
		baseLogger.Warn("whatsapp credentials missing, producer messaging disabled")
	}

	retries := cfg.Ledger.ConflictMaxRetries
	allocationSvc := allocationsvc.NewService(store, retries, baseLogger.Named("svc.allocation"))
	submissionSvc := submissionsvc.NewService(store, submissionsvc.Config{
		QuantityTolerance: cfg.Ledger.QuantityTolerance,
		MaxRetries:        retries,
	}, submissionNotifier, baseLogger.Named("svc.submissions"))
	carrierSvc := carriersvc.NewService(store, retries, baseLogger.Named("svc.carriers"))
	processingSvc := processingsvc.NewService(store, retries, baseLogger.Named("svc.processing"))
	stockSvc := stocksvc.NewService(store, retries, baseLogger.Named("svc.stock"))
	paymentSvc := paymentsvc.NewService(store, credits, paymentsvc.Config{
		UnitPrice:  cfg.Ledger.UnitPrice,
		CycleDays:  cfg.Ledger.PaymentCycleDays,
		MaxRetries: retries,
	}, paymentNotifier, baseLogger.Named("svc.payments"))
	reportingSvc := reportingsvc.NewService(store, store, sheet, baseLogger.Named("svc.reporting"))

	routes := router.Handlers{
		Milk:   handlers.NewMilkHandler(submissionSvc, carrierSvc, processingSvc, baseLogger.Named("handlers.milk")),
		Ledger: handlers.NewLedgerHandler(stockSvc, paymentSvc, allocationSvc, reportingSvc, baseLogger.Named("handlers.ledger")),
	}
	if notifier != nil {
		dispatcher := commandsvc.NewService(submissionSvc, paymentSvc, whatsappsvc.NewSessionManager(), cfg.Ledger.PaymentCycleDays, baseLogger.Named("svc.commands"))
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, notifier, dispatcher, baseLogger.Named("svc.whatsapp"))
		routes.Webhook = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
	}
	engine := router.New(routes, baseLogger.Named("router"))

	sched, err := scheduler.NewScheduler(cfg.Reporting, cfg.WhatsApp.ManagerPhone, reportingSvc, paymentSvc, messenger, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-sigCtx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
