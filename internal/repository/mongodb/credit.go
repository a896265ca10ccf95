package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mamadbah2/milkledger/internal/domain/models"
)

// CreditLedger reads advances another system writes into credit_advances.
type CreditLedger struct {
	collection *mongo.Collection
}

// ApprovedAdvances sums the producer's advances whose status is approved in any casing.
func (c *CreditLedger) ApprovedAdvances(ctx context.Context, producerID string) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"producer_id": producerID,
			"status":      primitive.Regex{Pattern: "^" + models.CreditStatusApproved + "$", Options: "i"},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": bson.M{"$toDecimal": "$amount"}},
		}}},
	}

	cursor, err := c.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, fmt.Errorf("aggregate credit advances: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Total decimal.Decimal `bson:"total"`
	}
	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return decimal.Zero, fmt.Errorf("read credit advances: %w", err)
		}
		return decimal.Zero, nil
	}
	if err := cursor.Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("decode credit advances: %w", err)
	}
	return result.Total, nil
}
