package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/service/submissions"
)

// SubmissionService is the part of the submission ledger the API exposes.
type SubmissionService interface {
	Submit(ctx context.Context, producerID, collectionPointID, milkType string, amount decimal.Decimal) (models.Submission, error)
	Resolve(ctx context.Context, submissionID string, resolution submissions.Resolution) (models.Submission, []models.Warning, error)
	Get(ctx context.Context, submissionID string) (models.Submission, error)
	ListByProducer(ctx context.Context, producerID string, status models.Status) ([]models.Submission, error)
}

// CarrierService is the carrier allocation tracker.
type CarrierService interface {
	Assign(ctx context.Context, carrierID, collectionPointID string, amount decimal.Decimal) (models.CarrierAllocation, error)
	Approve(ctx context.Context, carrierAllocationID string) (models.CarrierAllocation, error)
	Reject(ctx context.Context, carrierAllocationID string) (models.CarrierAllocation, error)
	RemainingFor(ctx context.Context, carrierAllocationID string) (decimal.Decimal, error)
	Get(ctx context.Context, carrierAllocationID string) (models.CarrierAllocation, error)
}

// ProcessingService is the processing receipt tracker.
type ProcessingService interface {
	Receive(ctx context.Context, carrierAllocationID, processingFacilityID string, amount decimal.Decimal) (models.ProcessingReceipt, error)
	Approve(ctx context.Context, receiptID string) (models.ProcessingReceipt, error)
	Reject(ctx context.Context, receiptID string) (models.ProcessingReceipt, error)
	Get(ctx context.Context, receiptID string) (models.ProcessingReceipt, error)
}

// MilkHandler serves the milk flow from producer to processing facility.
type MilkHandler struct {
	submissions SubmissionService
	carriers    CarrierService
	processing  ProcessingService
	logger      *zap.Logger
}

// NewMilkHandler constructs the HTTP handler adapter.
func NewMilkHandler(submissions SubmissionService, carriers CarrierService, processing ProcessingService, logger *zap.Logger) *MilkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilkHandler{submissions: submissions, carriers: carriers, processing: processing, logger: logger}
}

type submitRequest struct {
	ProducerID        string          `json:"producer_id" binding:"required"`
	CollectionPointID string          `json:"collection_point_id" binding:"required"`
	MilkType          string          `json:"milk_type" binding:"required"`
	Amount            decimal.Decimal `json:"amount" binding:"dgt0"`
}

type resolveRequest struct {
	Decision     string           `json:"decision" binding:"required"`
	ActualAmount *decimal.Decimal `json:"actual_amount"`
	QualityNote  string           `json:"quality_note"`
}

type resolveResponse struct {
	Submission models.Submission `json:"submission"`
	Warnings   []models.Warning  `json:"warnings,omitempty"`
}

type assignRequest struct {
	CarrierID         string          `json:"carrier_id" binding:"required"`
	CollectionPointID string          `json:"collection_point_id" binding:"required"`
	Amount            decimal.Decimal `json:"amount" binding:"dgt0"`
}

type receiveRequest struct {
	CarrierAllocationID  string          `json:"carrier_allocation_id" binding:"required"`
	ProcessingFacilityID string          `json:"processing_facility_id" binding:"required"`
	Amount               decimal.Decimal `json:"amount" binding:"dgt0"`
}

// Submit records a pending delivery.
func (h *MilkHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	submission, err := h.submissions.Submit(c.Request.Context(), req.ProducerID, req.CollectionPointID, req.MilkType, req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, submission)
}

// Resolve accepts or rejects a pending delivery.
func (h *MilkHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	decision, err := models.ParseDecision(req.Decision)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	submission, warnings, err := h.submissions.Resolve(c.Request.Context(), c.Param("id"), submissions.Resolution{
		Decision:     decision,
		ActualAmount: req.ActualAmount,
		QualityNote:  req.QualityNote,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resolveResponse{Submission: submission, Warnings: warnings})
}

// GetSubmission returns one delivery.
func (h *MilkHandler) GetSubmission(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, submission)
}

// ListProducerSubmissions lists a producer's deliveries, optionally filtered by ?status=.
func (h *MilkHandler) ListProducerSubmissions(c *gin.Context) {
	var status models.Status
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseStatus(raw)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		status = parsed
	}

	list, err := h.submissions.ListByProducer(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.Submission{}
	}
	c.JSON(http.StatusOK, list)
}

// Assign moves milk from a collection point onto a carrier trip.
func (h *MilkHandler) Assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	trip, err := h.carriers.Assign(c.Request.Context(), req.CarrierID, req.CollectionPointID, req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

// ApproveCarrier completes a trip.
func (h *MilkHandler) ApproveCarrier(c *gin.Context) {
	h.respondTrip(c)(h.carriers.Approve(c.Request.Context(), c.Param("id")))
}

// RejectCarrier cancels a trip and returns its milk to the collection point.
func (h *MilkHandler) RejectCarrier(c *gin.Context) {
	h.respondTrip(c)(h.carriers.Reject(c.Request.Context(), c.Param("id")))
}

// GetCarrier returns one trip.
func (h *MilkHandler) GetCarrier(c *gin.Context) {
	h.respondTrip(c)(h.carriers.Get(c.Request.Context(), c.Param("id")))
}

// CarrierRemaining reports what facilities can still receive from a trip.
func (h *MilkHandler) CarrierRemaining(c *gin.Context) {
	id := c.Param("id")
	remaining, err := h.carriers.RemainingFor(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"carrier_allocation_id": id, "remaining": remaining})
}

func (h *MilkHandler) respondTrip(c *gin.Context) func(models.CarrierAllocation, error) {
	return func(trip models.CarrierAllocation, err error) {
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, trip)
	}
}

// Receive records milk taken in by a processing facility.
func (h *MilkHandler) Receive(c *gin.Context) {
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	receipt, err := h.processing.Receive(c.Request.Context(), req.CarrierAllocationID, req.ProcessingFacilityID, req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// ApproveReceipt completes a receipt.
func (h *MilkHandler) ApproveReceipt(c *gin.Context) {
	h.respondReceipt(c)(h.processing.Approve(c.Request.Context(), c.Param("id")))
}

// RejectReceipt cancels a receipt and returns its milk to the trip.
func (h *MilkHandler) RejectReceipt(c *gin.Context) {
	h.respondReceipt(c)(h.processing.Reject(c.Request.Context(), c.Param("id")))
}

// GetReceipt returns one receipt.
func (h *MilkHandler) GetReceipt(c *gin.Context) {
	h.respondReceipt(c)(h.processing.Get(c.Request.Context(), c.Param("id")))
}

func (h *MilkHandler) respondReceipt(c *gin.Context) func(models.ProcessingReceipt, error) {
	return func(receipt models.ProcessingReceipt, err error) {
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}
