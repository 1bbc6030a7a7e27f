// Package testinfra starts throwaway infrastructure for integration tests.
package testinfra

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/ingredient-stock/pkg/mongodb"
)

// MongoImage is a server version with multi-document transactions on single-node replica sets
const MongoImage = "mongo:7"

// MongoDatabase starts a single-node replica set, connects to it the way the
// service does and returns the named database. Everything is torn down when t ends.
func MongoDatabase(t testing.TB, name string) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	container, err := tcmongo.Run(ctx, MongoImage, tcmongo.WithReplicaSet("rs0"))
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start mongodb container: %v", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get mongodb connection string: %v", err)
	}

	config := mongodb.DefaultConfig()
	config.URI = uri
	config.Database = name
	config.MinPoolSize = 0
	client, err := mongodb.NewClient(ctx, config, nil, nil)
	if err != nil {
		t.Fatalf("failed to connect to mongodb container: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return client.Database()
}
