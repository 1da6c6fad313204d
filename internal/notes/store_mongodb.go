package notes

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goupdate/internal/core"
)

type mongoNoteDocument struct {
	Product   string `bson:"product"`
	Version   string `bson:"version"`
	Notes     string `bson:"notes"`
	UpdatedAt int64  `bson:"updated_at"`
}

// MongoDBStore stores release notes in MongoDB.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates the collection's unique index if needed.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	coll := database.Collection("release_notes")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "product", Value: 1}, {Key: "version", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("create release_notes index: %w", err)
	}

	return &MongoDBStore{collection: coll}, nil
}

// Load returns every note of a product.
func (s *MongoDBStore) Load(ctx context.Context, product string) ([]core.ReleaseNote, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"product": product}, opts)
	if err != nil {
		return nil, fmt.Errorf("query release notes: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]core.ReleaseNote, 0)
	for cursor.Next(ctx) {
		var doc mongoNoteDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode release note document: %w", err)
		}
		items = append(items, core.ReleaseNote{Version: doc.Version, Notes: doc.Notes})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate release notes cursor: %w", err)
	}
	return items, nil
}

// Upsert writes notes with one bulk write.
func (s *MongoDBStore) Upsert(ctx context.Context, product string, notes []core.ReleaseNote) error {
	if product == "" {
		return fmt.Errorf("product is required")
	}
	if len(notes) == 0 {
		return nil
	}

	updatedAt := time.Now().Unix()
	models := make([]mongo.WriteModel, 0, len(notes))
	for v, n := range toMap(notes) {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"product": product, "version": v}).
			SetUpdate(bson.M{"$set": mongoNoteDocument{
				Product:   product,
				Version:   v,
				Notes:     n,
				UpdatedAt: updatedAt,
			}}).
			SetUpsert(true))
	}

	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert release notes: %w", err)
	}
	return nil
}

// Close is a no-op; client lifecycle is managed by storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
