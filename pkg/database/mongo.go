package database

import (
	"context"
	"fmt"
	"time"

	"chat_sync_service/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// NewMongoDB create a new MongoDB connection
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	opts := options.Client().ApplyURI(c.ConnectStr)

	var err error
	for i := 0; i <= c.RetryCount; i++ {
		var client *mongo.Client
		client, err = mongo.Connect(ctx, opts)
		if err == nil {
			// connect 是 lazy 的，ping 過才算真的通
			if err = client.Ping(ctx, readpref.Primary()); err == nil {
				return &MongoDB{Client: client, Database: client.Database(dbName)}, nil
			}
		}
		if i < c.RetryCount {
			logger.Log.Warn(
				"Failed to connect to mongoDB, retrying...",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(c.RetryInterval)
		}
	}

	return nil, fmt.Errorf("connect mongoDB: %w", err)
}

// Close disconnect the client
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
