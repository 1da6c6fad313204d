//go:build integration

// Package dbassert reads persisted release notes back from each supported
// database so tests can assert what the server wrote.
package dbassert

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// NotesCollection is the table or collection holding release notes.
const NotesCollection = "release_notes"

// QueryNotesPostgreSQL returns a product's persisted notes keyed by version.
func QueryNotesPostgreSQL(t *testing.T, pool *pgxpool.Pool, product string) map[string]string {
	t.Helper()

	rows, err := pool.Query(context.Background(),
		`SELECT version, notes FROM `+NotesCollection+` WHERE product = $1`, product)
	require.NoError(t, err, "failed to query release notes")
	defer rows.Close()

	notes := make(map[string]string)
	for rows.Next() {
		var version, text string
		require.NoError(t, rows.Scan(&version, &text))
		notes[version] = text
	}
	require.NoError(t, rows.Err())
	return notes
}

// QueryNotesMongoDB returns a product's persisted notes keyed by version.
func QueryNotesMongoDB(t *testing.T, db *mongo.Database, product string) map[string]string {
	t.Helper()

	ctx := context.Background()
	cursor, err := db.Collection(NotesCollection).Find(ctx, bson.M{"product": product})
	require.NoError(t, err, "failed to query release notes")
	defer func() { _ = cursor.Close(ctx) }()

	var docs []struct {
		Version string `bson:"version"`
		Notes   string `bson:"notes"`
	}
	require.NoError(t, cursor.All(ctx, &docs))

	notes := make(map[string]string, len(docs))
	for _, d := range docs {
		notes[d.Version] = d.Notes
	}
	return notes
}

// DropNotesPostgreSQL removes the notes table. The server recreates it on start.
func DropNotesPostgreSQL(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `DROP TABLE IF EXISTS `+NotesCollection)
	require.NoError(t, err)
}

// DropNotesMongoDB removes the notes collection. The server recreates it on start.
func DropNotesMongoDB(t *testing.T, db *mongo.Database) {
	t.Helper()
	require.NoError(t, db.Collection(NotesCollection).Drop(context.Background()))
}
