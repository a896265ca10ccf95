package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Submission is a producer's milk delivery to a collection point.
type Submission struct {
	ID                string          `json:"id" bson:"_id"`
	ProducerID        string          `json:"producer_id" bson:"producer_id"`
	CollectionPointID string          `json:"collection_point_id" bson:"collection_point_id"`
	MilkType          string          `json:"milk_type" bson:"milk_type"`
	DeclaredAmount    decimal.Decimal `json:"declared_amount" bson:"declared_amount"`
	ActualAmount      decimal.Decimal `json:"actual_amount" bson:"actual_amount"`
	Status            Status          `json:"status" bson:"status"`
	FlaggedForReview  bool            `json:"flagged_for_review" bson:"flagged_for_review"`
	QualityNote       string          `json:"quality_note,omitempty" bson:"quality_note,omitempty"`
	SubmittedAt       time.Time       `json:"submitted_at" bson:"submitted_at"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
}

// CarrierAllocation is milk assigned from a collection point to a carrier trip.
type CarrierAllocation struct {
	ID                string          `json:"id" bson:"_id"`
	CarrierID         string          `json:"carrier_id" bson:"carrier_id"`
	CollectionPointID string          `json:"collection_point_id" bson:"collection_point_id"`
	AllocationID      string          `json:"allocation_id" bson:"allocation_id"`
	Amount            decimal.Decimal `json:"amount" bson:"amount"`
	Status            Status          `json:"status" bson:"status"`
	CreatedAt         time.Time       `json:"created_at" bson:"created_at"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
}

// ProcessingReceipt is milk a processing facility took in from a carrier trip.
type ProcessingReceipt struct {
	ID                   string          `json:"id" bson:"_id"`
	CarrierAllocationID  string          `json:"carrier_allocation_id" bson:"carrier_allocation_id"`
	ProcessingFacilityID string          `json:"processing_facility_id" bson:"processing_facility_id"`
	AllocationID         string          `json:"allocation_id" bson:"allocation_id"`
	Amount               decimal.Decimal `json:"amount" bson:"amount"`
	Status               Status          `json:"status" bson:"status"`
	CreatedAt            time.Time       `json:"created_at" bson:"created_at"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
}
