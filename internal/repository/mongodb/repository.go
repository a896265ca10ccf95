// Package mongodb persists the ledger in MongoDB. Every WithTx callback runs in a
// multi-document session transaction, so it needs a replica set.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/repository"
)

const (
	poolsCollection        = "pools"
	allocationsCollection  = "allocations"
	submissionsCollection  = "submissions"
	carriersCollection     = "carrier_allocations"
	receiptsCollection     = "processing_receipts"
	batchesCollection      = "stock_batches"
	consumptionsCollection = "stock_consumptions"
	paymentsCollection     = "payments"
	accountsCollection     = "producer_accounts"
	reportsCollection      = "daily_reports"
	creditsCollection      = "credit_advances"
)

var (
	_ repository.Store            = (*Store)(nil)
	_ repository.ReportRepository = (*Store)(nil)
)

// Store is the MongoDB ledger.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewStore connects to MongoDB and checks the connection.
func NewStore(ctx context.Context, uri, dbName string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri).SetRegistry(newRegistry())
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{client: client, db: client.Database(dbName), logger: logger}, nil
}

// EnsureIndexes creates the secondary indexes the ledger queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		submissionsCollection: {
			{Keys: bson.D{{Key: "producer_id", Value: 1}, {Key: "status", Value: 1}, {Key: "submitted_at", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		allocationsCollection: {
			{Keys: bson.D{{Key: "pool_id", Value: 1}}},
		},
		receiptsCollection: {
			{Keys: bson.D{{Key: "carrier_allocation_id", Value: 1}}},
		},
		batchesCollection: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		consumptionsCollection: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		paymentsCollection: {
			{Keys: bson.D{{Key: "producer_id", Value: 1}, {Key: "period_start", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		reportsCollection: {
			{Keys: bson.D{{Key: "date", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		creditsCollection: {
			{Keys: bson.D{{Key: "producer_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}

	for name, specs := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// WithTx runs fn inside a snapshot session transaction. The driver replays fn
// on transient transaction errors, write conflicts included.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	txOptions := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &tx{db: s.db})
	}, txOptions)
	return err
}

// SaveDailyReport upserts the snapshot for its date.
func (s *Store) SaveDailyReport(ctx context.Context, report models.DailyReport) error {
	collection := s.db.Collection(reportsCollection)
	_, err := collection.ReplaceOne(ctx, bson.M{"date": report.Date}, report, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save daily report: %w", err)
	}
	s.logger.Debug("daily report saved", zap.Time("date", report.Date))
	return nil
}

// Credits returns a reader over the credit_advances collection.
func (s *Store) Credits() *CreditLedger {
	return &CreditLedger{collection: s.db.Collection(creditsCollection)}
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
