package mongodb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
)

var _ repository.Tx = (*tx)(nil)

// tx issues every call with the session context handed to WithTx.
type tx struct {
	db *mongo.Database
}

func (t *tx) collection(name string) *mongo.Collection {
	return t.db.Collection(name)
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, id string, missing error) (T, error) {
	var out T
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return out, fmt.Errorf("%w: %s", missing, id)
	}
	if err != nil {
		return out, fmt.Errorf("load %s %s: %w", coll.Name(), id, err)
	}
	return out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", coll.Name(), err)
	}
	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return out, nil
}

func insertOne(ctx context.Context, coll *mongo.Collection, doc any) error {
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert into %s: %w", coll.Name(), err)
	}
	return nil
}

// replaceWhere swaps the document only while filter still matches it.
func replaceWhere(ctx context.Context, coll *mongo.Collection, filter bson.M, doc any) error {
	res, err := coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("update %s: %w", coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %v: %w", coll.Name(), filter["_id"], models.ErrConcurrentModification)
	}
	return nil
}

func (t *tx) GetPool(ctx context.Context, id string) (models.Pool, error) {
	return findOne[models.Pool](ctx, t.collection(poolsCollection), id, models.ErrPoolNotFound)
}

// InsertPool reports a duplicate id as a lost race: another transaction opened
// the pool after this one's snapshot was taken.
func (t *tx) InsertPool(ctx context.Context, pool models.Pool) error {
	err := insertOne(ctx, t.collection(poolsCollection), pool)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("pool %s: %w", pool.ID, models.ErrConcurrentModification)
	}
	return err
}

func (t *tx) UpdatePool(ctx context.Context, pool models.Pool, expectedVersion int64) error {
	pool.Version = expectedVersion + 1
	return replaceWhere(ctx, t.collection(poolsCollection), bson.M{"_id": pool.ID, "version": expectedVersion}, pool)
}

func (t *tx) ListPools(ctx context.Context, kind models.PoolKind) ([]models.Pool, error) {
	filter := bson.M{}
	if kind != "" {
		filter["kind"] = kind
	}
	return findAll[models.Pool](ctx, t.collection(poolsCollection), filter, bson.D{{Key: "_id", Value: 1}})
}

func (t *tx) GetAllocation(ctx context.Context, id string) (models.Allocation, error) {
	return findOne[models.Allocation](ctx, t.collection(allocationsCollection), id, models.ErrNotFound)
}

func (t *tx) InsertAllocation(ctx context.Context, allocation models.Allocation) error {
	return insertOne(ctx, t.collection(allocationsCollection), allocation)
}

func (t *tx) UpdateAllocation(ctx context.Context, allocation models.Allocation) error {
	return replaceWhere(ctx, t.collection(allocationsCollection), bson.M{"_id": allocation.ID}, allocation)
}

func (t *tx) GetSubmission(ctx context.Context, id string) (models.Submission, error) {
	return findOne[models.Submission](ctx, t.collection(submissionsCollection), id, models.ErrNotFound)
}

func (t *tx) InsertSubmission(ctx context.Context, submission models.Submission) error {
	return insertOne(ctx, t.collection(submissionsCollection), submission)
}

func (t *tx) UpdateSubmission(ctx context.Context, submission models.Submission, from models.Status) error {
	return replaceWhere(ctx, t.collection(submissionsCollection), bson.M{"_id": submission.ID, "status": from}, submission)
}

func (t *tx) ListSubmissionsByProducer(ctx context.Context, producerID string, status models.Status) ([]models.Submission, error) {
	filter := bson.M{"producer_id": producerID}
	if status != "" {
		filter["status"] = status
	}
	sort := bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}}
	return findAll[models.Submission](ctx, t.collection(submissionsCollection), filter, sort)
}

func (t *tx) ListProducersWithStatus(ctx context.Context, status models.Status) ([]string, error) {
	values, err := t.collection(submissionsCollection).Distinct(ctx, "producer_id", bson.M{"status": status})
	if err != nil {
		return nil, fmt.Errorf("distinct producers: %w", err)
	}
	producers := make([]string, 0, len(values))
	for _, value := range values {
		if id, ok := value.(string); ok {
			producers = append(producers, id)
		}
	}
	slices.Sort(producers)
	return producers, nil
}

func (t *tx) GetCarrierAllocation(ctx context.Context, id string) (models.CarrierAllocation, error) {
	return findOne[models.CarrierAllocation](ctx, t.collection(carriersCollection), id, models.ErrNotFound)
}

func (t *tx) InsertCarrierAllocation(ctx context.Context, allocation models.CarrierAllocation) error {
	return insertOne(ctx, t.collection(carriersCollection), allocation)
}

func (t *tx) UpdateCarrierAllocation(ctx context.Context, allocation models.CarrierAllocation, from models.Status) error {
	return replaceWhere(ctx, t.collection(carriersCollection), bson.M{"_id": allocation.ID, "status": from}, allocation)
}

func (t *tx) GetReceipt(ctx context.Context, id string) (models.ProcessingReceipt, error) {
	return findOne[models.ProcessingReceipt](ctx, t.collection(receiptsCollection), id, models.ErrNotFound)
}

func (t *tx) InsertReceipt(ctx context.Context, receipt models.ProcessingReceipt) error {
	return insertOne(ctx, t.collection(receiptsCollection), receipt)
}

func (t *tx) UpdateReceipt(ctx context.Context, receipt models.ProcessingReceipt, from models.Status) error {
	return replaceWhere(ctx, t.collection(receiptsCollection), bson.M{"_id": receipt.ID, "status": from}, receipt)
}

func (t *tx) GetBatch(ctx context.Context, id string) (models.StockBatch, error) {
	return findOne[models.StockBatch](ctx, t.collection(batchesCollection), id, models.ErrNotFound)
}

func (t *tx) InsertBatch(ctx context.Context, batch models.StockBatch) error {
	return insertOne(ctx, t.collection(batchesCollection), batch)
}

func (t *tx) ListBatchesByProduct(ctx context.Context, productID string) ([]models.StockBatch, error) {
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	return findAll[models.StockBatch](ctx, t.collection(batchesCollection), bson.M{"product_id": productID}, sort)
}

func (t *tx) GetConsumption(ctx context.Context, id string) (models.StockConsumption, error) {
	return findOne[models.StockConsumption](ctx, t.collection(consumptionsCollection), id, models.ErrNotFound)
}

func (t *tx) InsertConsumption(ctx context.Context, consumption models.StockConsumption) error {
	return insertOne(ctx, t.collection(consumptionsCollection), consumption)
}

func (t *tx) UpdateConsumption(ctx context.Context, consumption models.StockConsumption, from models.Status) error {
	return replaceWhere(ctx, t.collection(consumptionsCollection), bson.M{"_id": consumption.ID, "status": from}, consumption)
}

func (t *tx) ListConsumptionsByProduct(ctx context.Context, productID string) ([]models.StockConsumption, error) {
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	return findAll[models.StockConsumption](ctx, t.collection(consumptionsCollection), bson.M{"product_id": productID}, sort)
}

func (t *tx) InsertPayment(ctx context.Context, payment models.Payment) error {
	return insertOne(ctx, t.collection(paymentsCollection), payment)
}

func (t *tx) ListPaymentsByProducer(ctx context.Context, producerID string) ([]models.Payment, error) {
	sort := bson.D{{Key: "period_start", Value: 1}, {Key: "_id", Value: 1}}
	return findAll[models.Payment](ctx, t.collection(paymentsCollection), bson.M{"producer_id": producerID}, sort)
}

func (t *tx) ListPaymentsBetween(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
	filter := bson.M{"created_at": bson.M{"$gte": from, "$lt": to}}
	sort := bson.D{{Key: "period_start", Value: 1}, {Key: "_id", Value: 1}}
	return findAll[models.Payment](ctx, t.collection(paymentsCollection), filter, sort)
}

// LockProducer writes the producer account document. Two transactions touching
// the same account conflict on it and the later one is replayed.
func (t *tx) LockProducer(ctx context.Context, producerID string) error {
	_, err := t.collection(accountsCollection).UpdateOne(ctx,
		bson.M{"_id": producerID},
		bson.M{"$inc": bson.M{"version": 1}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("lock producer %s: %w", producerID, err)
	}
	return nil
}

func (t *tx) CountPending(ctx context.Context) (models.PendingCounts, error) {
	var counts models.PendingCounts
	targets := []struct {
		collection string
		into       *int
	}{
		{submissionsCollection, &counts.Submissions},
		{carriersCollection, &counts.CarrierAllocations},
		{receiptsCollection, &counts.Receipts},
		{consumptionsCollection, &counts.Consumptions},
	}
	for _, target := range targets {
		n, err := t.collection(target.collection).CountDocuments(ctx, bson.M{"status": models.StatusPending})
		if err != nil {
			return models.PendingCounts{}, fmt.Errorf("count pending %s: %w", target.collection, err)
		}
		*target.into = int(n)
	}
	return counts, nil
}
