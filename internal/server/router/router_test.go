package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkledger/internal/repository/memory"
	"github.com/mamadbah2/milkledger/internal/server/handlers"
	"github.com/mamadbah2/milkledger/internal/service/allocation"
	"github.com/mamadbah2/milkledger/internal/service/carriers"
	"github.com/mamadbah2/milkledger/internal/service/payments"
	"github.com/mamadbah2/milkledger/internal/service/processing"
	"github.com/mamadbah2/milkledger/internal/service/reporting"
	"github.com/mamadbah2/milkledger/internal/service/stock"
	"github.com/mamadbah2/milkledger/internal/service/submissions"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()

	store := memory.NewStore()
	submissionSvc := submissions.NewService(store, submissions.Config{QuantityTolerance: decimal.RequireFromString("0.1"), MaxRetries: 3}, nil, nil)
	paymentSvc := payments.NewService(store, memory.NewCreditLedger(), payments.Config{UnitPrice: decimal.NewFromInt(400), CycleDays: 15, MaxRetries: 3}, nil, nil)

	return New(Handlers{
		Milk: handlers.NewMilkHandler(submissionSvc, carriers.NewService(store, 3, nil), processing.NewService(store, 3, nil), nil),
		Ledger: handlers.NewLedgerHandler(
			stock.NewService(store, 3, nil),
			paymentSvc,
			allocation.NewService(store, 3, nil),
			reporting.NewService(store, nil, nil, nil),
			nil,
		),
	}, nil)
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthz(t *testing.T) {
	rec, body := do(t, newTestEngine(t), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestWebhookRoutesOnlyWhenConfigured(t *testing.T) {
	rec, _ := do(t, newTestEngine(t), http.MethodGet, "/webhook", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMilkFlowOverHTTP(t *testing.T) {
	engine := newTestEngine(t)

	rec, submission := do(t, engine, http.MethodPost, "/api/v1/submissions", map[string]any{
		"producer_id":         "p1",
		"collection_point_id": "kindia",
		"milk_type":           "cow",
		"amount":              50,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", submission["status"])
	submissionID := submission["id"].(string)

	rec, resolved := do(t, engine, http.MethodPost, "/api/v1/submissions/"+submissionID+"/resolve", map[string]any{
		"decision":      "Accepted",
		"actual_amount": "44",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	warnings := resolved["warnings"].([]any)
	require.Len(t, warnings, 1)
	assert.Equal(t, "quantity_mismatch", warnings[0].(map[string]any)["code"])

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/submissions/"+submissionID+"/resolve", map[string]any{"decision": "reject"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, trip := do(t, engine, http.MethodPost, "/api/v1/carrier-allocations", map[string]any{
		"carrier_id":          "c1",
		"collection_point_id": "kindia",
		"amount":              "30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tripID := trip["id"].(string)

	rec, refused := do(t, engine, http.MethodPost, "/api/v1/carrier-allocations", map[string]any{
		"carrier_id":          "c2",
		"collection_point_id": "kindia",
		"amount":              "20",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "amount_exceeds_available", refused["error"])
	assert.Equal(t, "20", refused["requested"])
	assert.Equal(t, "14", refused["limit"])

	rec, receipt := do(t, engine, http.MethodPost, "/api/v1/processing-receipts", map[string]any{
		"carrier_allocation_id":  tripID,
		"processing_facility_id": "f1",
		"amount":                 "25",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", receipt["status"])

	rec, remaining := do(t, engine, http.MethodGet, "/api/v1/carrier-allocations/"+tripID+"/remaining", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", remaining["remaining"])

	rec, pool := do(t, engine, http.MethodGet, "/api/v1/pools/cp:kindia", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "44", pool["source"])
	assert.Equal(t, "14", pool["available"])

	rec, _ = do(t, engine, http.MethodGet, "/api/v1/pools/cp:nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStockOverHTTP(t *testing.T) {
	engine := newTestEngine(t)

	rec, batch := do(t, engine, http.MethodPost, "/api/v1/stock/batches", map[string]any{"product_id": "yogurt", "amount": "100"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batchID := batch["id"].(string)

	rec, consumption := do(t, engine, http.MethodPost, "/api/v1/stock/consumptions", map[string]any{"stock_batch_id": batchID, "amount": "40"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/stock/consumptions/"+consumption["id"].(string)+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, refused := do(t, engine, http.MethodPost, "/api/v1/stock/consumptions", map[string]any{"stock_batch_id": batchID, "amount": "70"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "requested 70, only 60 remaining", refused["message"])

	rec, balance := do(t, engine, http.MethodGet, "/api/v1/stock/products/yogurt/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", balance["balance"])
}

func TestValidationAndPaymentErrors(t *testing.T) {
	engine := newTestEngine(t)

	rec, body := do(t, engine, http.MethodPost, "/api/v1/submissions", map[string]any{
		"producer_id":         "p1",
		"collection_point_id": "kindia",
		"milk_type":           "cow",
		"amount":              0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body["error"])
	assert.Contains(t, body["message"], "amount must be greater than zero")

	rec, _ = do(t, engine, http.MethodGet, "/api/v1/producers/p1/submissions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, engine, http.MethodPost, "/api/v1/producers/p1/payments", map[string]any{
		"amount":       "1000",
		"period_start": "2026-04-01",
		"period_end":   "2026-04-15",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "payment_not_due", body["error"])

	rec, body = do(t, engine, http.MethodPost, "/api/v1/producers/p1/payments", map[string]any{
		"amount":       "1000",
		"period_start": "2026-04-15",
		"period_end":   "2026-04-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_period", body["error"])

	rec, body = do(t, engine, http.MethodGet, "/api/v1/producers/p1/payment-due", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["due"])
}
