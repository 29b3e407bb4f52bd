package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}

	db := MongoDatabase()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// turn_logs indexes
	turns := db.Collection("turn_logs")
	_, err := turns.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// TTL: expire at ExpiresAt (must be Date)
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		// turn numbering restarts on re-join, so this is not unique
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "turn_index", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("by_session_turn"),
		},
	})
	return err
}
