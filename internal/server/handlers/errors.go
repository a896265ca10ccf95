package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
)

// errorResponse is the JSON body of every failed API call.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Requested string `json:"requested,omitempty"`
	Limit     string `json:"limit,omitempty"`
}

var errorKinds = []struct {
	err    error
	kind   string
	status int
}{
	{models.ErrAmountExceedsAvailable, "amount_exceeds_available", http.StatusConflict},
	{models.ErrAlreadyResolved, "already_resolved", http.StatusConflict},
	{models.ErrInvalidStatusTransition, "invalid_status_transition", http.StatusConflict},
	{models.ErrPoolClosed, "pool_closed", http.StatusConflict},
	{models.ErrDuplicatePaymentPeriod, "duplicate_payment_period", http.StatusConflict},
	{models.ErrConcurrentModification, "concurrent_modification", http.StatusConflict},
	{models.ErrPoolNotFound, "pool_not_found", http.StatusNotFound},
	{models.ErrNotFound, "not_found", http.StatusNotFound},
	{models.ErrInvalidAmount, "invalid_amount", http.StatusBadRequest},
	{models.ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{models.ErrInvalidPeriod, "invalid_period", http.StatusBadRequest},
	{models.ErrPaymentNotDue, "payment_not_due", http.StatusUnprocessableEntity},
	{models.ErrDeliveryFailed, "delivery_failed", http.StatusBadGateway},
}

// respondError maps a service error onto a status code and JSON body.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	body := errorResponse{Error: "internal", Message: "internal error"}
	status := http.StatusInternalServerError

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			body.Error, body.Message, status = k.kind, err.Error(), k.status
			break
		}
	}

	var capacity *models.CapacityError
	if errors.As(err, &capacity) {
		body.Requested = capacity.Requested.String()
		body.Limit = capacity.Limit.String()
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		logger.Info("request refused", zap.String("path", c.FullPath()), zap.String("kind", body.Error), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, body)
}

// respondBindError reports a malformed or invalid request body.
func respondBindError(c *gin.Context, logger *zap.Logger, err error) {
	message := "invalid request body"

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, e := range verrs {
			parts = append(parts, validationMessage(e))
		}
		message = strings.Join(parts, "; ")
	}

	logger.Warn("invalid request", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: message})
}
