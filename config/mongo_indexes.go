package config

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDatabase returns the call desk database, MONGO_DB or "civicvoice".
func MongoDatabase() *mongo.Database {
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "civicvoice"
	}
	return MongoClient.Database(dbName)
}

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}
	db := MongoDatabase()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	calls := db.Collection("calls")
	_, err := calls.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "call_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_call_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_created"),
		},
	})
	if err != nil {
		return err
	}

	// complaint numbers repeat across calls; one ledger row per call and number
	complaints := db.Collection("complaints")
	_, err = complaints.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "call_id", Value: 1}, {Key: "complaint.complaint_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_call_complaint").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "complaint.complaint_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_complaint_created"),
		},
		{
			Keys:    bson.D{{Key: "delivery_status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_status_created"),
		},
	})
	return err
}
