package sink

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/schema"
)

// MongoSink inserts each table's rows into a MongoDB collection of the
// same name.
type MongoSink struct {
	client   *mongo.Client
	database string
}

// NewMongoSink connects to MongoDB and verifies the connection.
func NewMongoSink(ctx context.Context, connectionString, database string) (*MongoSink, error) {
	opts := options.Client().ApplyURI(connectionString)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	return &MongoSink{client: client, database: database}, nil
}

func (s *MongoSink) WriteTable(ctx context.Context, t *schema.Table, rows []backend.Row) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]any, len(rows))
	for i, row := range rows {
		doc := make(bson.M, len(row))
		for k, v := range row {
			doc[k] = v
		}
		docs[i] = doc
	}
	coll := s.client.Database(s.database).Collection(t.Name)
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("inserting rows into %s: %w", t.Name, err)
	}
	return nil
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
