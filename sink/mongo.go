package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aluiziolira/go-books-etl/models"
)

const stagingSuffix = "_staging"

// MongoSink stores each table as a collection, one document per row.
type MongoSink struct {
	client   *mongo.Client
	database string
}

// NewMongoSink connects to uri and verifies the connection.
func NewMongoSink(ctx context.Context, uri, database string, timeout time.Duration) (*MongoSink, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoSink{client: client, database: database}, nil
}

// Load fills a staging collection per table, then renames each over its target.
func (m *MongoSink) Load(ctx context.Context, tables []models.Table) error {
	db := m.client.Database(m.database)

	for _, table := range tables {
		staging := db.Collection(table.Name + stagingSuffix)
		if err := staging.Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", staging.Name(), err)
		}

		docs := Documents(table)
		if len(docs) == 0 {
			if err := db.CreateCollection(ctx, staging.Name()); err != nil {
				return fmt.Errorf("create %s: %w", staging.Name(), err)
			}
			continue
		}
		if _, err := staging.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert %s: %w", staging.Name(), err)
		}
	}

	admin := m.client.Database("admin")
	for _, table := range tables {
		cmd := bson.D{
			{Key: "renameCollection", Value: m.database + "." + table.Name + stagingSuffix},
			{Key: "to", Value: m.database + "." + table.Name},
			{Key: "dropTarget", Value: true},
		}
		if err := admin.RunCommand(ctx, cmd).Err(); err != nil {
			return fmt.Errorf("swap %s: %w", table.Name, err)
		}
		slog.Debug("collection replaced", slog.String("collection", table.Name), slog.Int("documents", len(table.Rows)))
	}
	return nil
}

// Documents converts table rows to ordered BSON documents keyed by column.
func Documents(table models.Table) []interface{} {
	docs := make([]interface{}, 0, len(table.Rows))
	for _, row := range table.Rows {
		doc := make(bson.D, 0, len(table.Columns))
		for i, column := range table.Columns {
			doc = append(doc, bson.E{Key: column, Value: row[i]})
		}
		docs = append(docs, doc)
	}
	return docs
}

// Close disconnects the client.
func (m *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
