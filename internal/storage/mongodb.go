package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDB is a client bound to one database.
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// OpenMongoDB connects and verifies the server is reachable.
func OpenMongoDB(ctx context.Context, cfg MongoDBConfig) (*MongoDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("MongoDB URL is required")
	}
	name := cfg.Database
	if name == "" {
		name = DefaultMongoDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &MongoDB{Client: client, Database: client.Database(name)}, nil
}

func (s *MongoDB) Type() string { return TypeMongoDB }

func (s *MongoDB) Ping(ctx context.Context) error { return s.Client.Ping(ctx, nil) }

func (s *MongoDB) Close() error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Disconnect(context.Background())
}
