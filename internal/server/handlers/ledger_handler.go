package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
)

const dateLayout = "2006-01-02"

// StockService is the stock ledger.
type StockService interface {
	StockIn(ctx context.Context, productID string, amount decimal.Decimal) (models.StockBatch, error)
	StockOut(ctx context.Context, batchID string, amount decimal.Decimal, linkedReceiptID string) (models.StockConsumption, error)
	Approve(ctx context.Context, consumptionID string) (models.StockConsumption, error)
	Reject(ctx context.Context, consumptionID string) (models.StockConsumption, error)
	BalanceOf(ctx context.Context, productID string) (models.ProductBalance, error)
}

// PaymentService is the payment scheduler.
type PaymentService interface {
	ComputeBalance(ctx context.Context, producerID string) (models.PayableBalance, error)
	IsPaymentDue(ctx context.Context, producerID string) (bool, error)
	RecordPayment(ctx context.Context, producerID string, amount decimal.Decimal, periodStart, periodEnd time.Time) (models.Payment, error)
}

// PoolService reads allocation pools.
type PoolService interface {
	Snapshot(ctx context.Context, poolID string) (models.Pool, error)
}

// ReportService builds reconciliation reports.
type ReportService interface {
	BuildDailyReport(ctx context.Context, day time.Time) (models.DailyReport, error)
}

// LedgerHandler serves stock, payments, pools and reports.
type LedgerHandler struct {
	stock    StockService
	payments PaymentService
	pools    PoolService
	reports  ReportService
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedgerHandler constructs the HTTP handler adapter.
func NewLedgerHandler(stock StockService, payments PaymentService, pools PoolService, reports ReportService, logger *zap.Logger) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{
		stock:    stock,
		payments: payments,
		pools:    pools,
		reports:  reports,
		logger:   logger,
		now:      time.Now,
	}
}

type stockInRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"dgt0"`
}

type stockOutRequest struct {
	StockBatchID    string          `json:"stock_batch_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"dgt0"`
	LinkedReceiptID string          `json:"linked_receipt_id"`
}

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"dgt0"`
	PeriodStart string          `json:"period_start" binding:"required"`
	PeriodEnd   string          `json:"period_end" binding:"required"`
}

type poolResponse struct {
	models.Pool
	Remaining decimal.Decimal `json:"remaining"`
	Available decimal.Decimal `json:"available"`
}

// StockIn records a new batch.
func (h *LedgerHandler) StockIn(c *gin.Context) {
	var req stockInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	batch, err := h.stock.StockIn(c.Request.Context(), req.ProductID, req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// StockOut draws from one batch.
func (h *LedgerHandler) StockOut(c *gin.Context) {
	var req stockOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	consumption, err := h.stock.StockOut(c.Request.Context(), req.StockBatchID, req.Amount, req.LinkedReceiptID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, consumption)
}

// ApproveConsumption finalizes a stock-out.
func (h *LedgerHandler) ApproveConsumption(c *gin.Context) {
	h.respondConsumption(c)(h.stock.Approve(c.Request.Context(), c.Param("id")))
}

// RejectConsumption cancels a stock-out and returns the quantity to its batch.
func (h *LedgerHandler) RejectConsumption(c *gin.Context) {
	h.respondConsumption(c)(h.stock.Reject(c.Request.Context(), c.Param("id")))
}

func (h *LedgerHandler) respondConsumption(c *gin.Context) func(models.StockConsumption, error) {
	return func(consumption models.StockConsumption, err error) {
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, consumption)
	}
}

// ProductBalance sums every batch of a product.
func (h *LedgerHandler) ProductBalance(c *gin.Context) {
	balance, err := h.stock.BalanceOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// Pool returns a pool with its remaining and available quantities.
func (h *LedgerHandler) Pool(c *gin.Context) {
	pool, err := h.pools.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, poolResponse{Pool: pool, Remaining: pool.Remaining(), Available: pool.Available()})
}

// ProducerBalance returns what the cooperative owes a producer.
func (h *LedgerHandler) ProducerBalance(c *gin.Context) {
	balance, err := h.payments.ComputeBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// PaymentDue reports whether a producer's payment cycle has elapsed.
func (h *LedgerHandler) PaymentDue(c *gin.Context) {
	id := c.Param("id")
	due, err := h.payments.IsPaymentDue(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"producer_id": id, "due": due})
}

// RecordPayment stores a payout for a producer.
func (h *LedgerHandler) RecordPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	start, err := time.Parse(dateLayout, req.PeriodStart)
	if err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	end, err := time.Parse(dateLayout, req.PeriodEnd)
	if err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	payment, err := h.payments.RecordPayment(c.Request.Context(), c.Param("id"), req.Amount, start, end)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// DailyReport builds the reconciliation snapshot for ?date=YYYY-MM-DD, today by default.
func (h *LedgerHandler) DailyReport(c *gin.Context) {
	day := h.now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			respondBindError(c, h.logger, err)
			return
		}
		day = parsed
	}

	report, err := h.reports.BuildDailyReport(c.Request.Context(), day)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
