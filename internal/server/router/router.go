package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/server/handlers"
)

// Handlers groups the HTTP adapters the router mounts. Webhook is optional.
type Handlers struct {
	Milk    *handlers.MilkHandler
	Ledger  *handlers.LedgerHandler
	Webhook *handlers.WebhookHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	handlers.SetupValidator()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if h.Webhook != nil {
		r.GET("/webhook", h.Webhook.Verify)
		r.POST("/webhook", h.Webhook.Receive)
		r.POST("/send-message", h.Webhook.SendMessage)
	}

	v1 := r.Group("/api/v1")

	submissions := v1.Group("/submissions")
	submissions.POST("", h.Milk.Submit)
	submissions.GET("/:id", h.Milk.GetSubmission)
	submissions.POST("/:id/resolve", h.Milk.Resolve)

	carriers := v1.Group("/carrier-allocations")
	carriers.POST("", h.Milk.Assign)
	carriers.GET("/:id", h.Milk.GetCarrier)
	carriers.GET("/:id/remaining", h.Milk.CarrierRemaining)
	carriers.POST("/:id/approve", h.Milk.ApproveCarrier)
	carriers.POST("/:id/reject", h.Milk.RejectCarrier)

	receipts := v1.Group("/processing-receipts")
	receipts.POST("", h.Milk.Receive)
	receipts.GET("/:id", h.Milk.GetReceipt)
	receipts.POST("/:id/approve", h.Milk.ApproveReceipt)
	receipts.POST("/:id/reject", h.Milk.RejectReceipt)

	stock := v1.Group("/stock")
	stock.POST("/batches", h.Ledger.StockIn)
	stock.POST("/consumptions", h.Ledger.StockOut)
	stock.POST("/consumptions/:id/approve", h.Ledger.ApproveConsumption)
	stock.POST("/consumptions/:id/reject", h.Ledger.RejectConsumption)
	stock.GET("/products/:id/balance", h.Ledger.ProductBalance)

	v1.GET("/pools/:id", h.Ledger.Pool)

	producers := v1.Group("/producers")
	producers.GET("/:id/submissions", h.Milk.ListProducerSubmissions)
	producers.GET("/:id/balance", h.Ledger.ProducerBalance)
	producers.GET("/:id/payment-due", h.Ledger.PaymentDue)
	producers.POST("/:id/payments", h.Ledger.RecordPayment)

	v1.GET("/reports/daily", h.Ledger.DailyReport)

	if logger != nil {
		logger.Info("router initialized", zap.Bool("webhook", h.Webhook != nil))
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
