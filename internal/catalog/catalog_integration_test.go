//go:build integration

package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Requires a reachable MongoDB, e.g.
// DINELYTICS_TEST_MONGODB_URI=mongodb://localhost:27017 go test -tags integration ./internal/catalog
func TestCatalog_Integration(t *testing.T) {
	uri := os.Getenv("DINELYTICS_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("DINELYTICS_TEST_MONGODB_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbName := "dinelytics_test_" + time.Now().Format("20060102150405")
	c, err := Connect(ctx, uri, dbName)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() {
		c.db.Drop(context.Background())
		c.Close(context.Background())
	}()

	_, err = c.db.Collection(ProductsCollection).InsertMany(ctx, []any{
		bson.M{"name": "Buffalo Wings"},
		bson.M{"name": "Margherita Pizza"},
	})
	if err != nil {
		t.Fatalf("seeding products: %v", err)
	}
	_, err = c.db.Collection(OrdersCollection).InsertMany(ctx, []any{
		bson.M{"total_amount": 20.5, "details": bson.A{
			bson.M{"name": "Wings Combo", "price": 12.5, "qty": 1},
			bson.M{"name": "Margherita Pizza", "price": 8, "qty": 1},
		}},
	})
	if err != nil {
		t.Fatalf("seeding orders: %v", err)
	}

	names, err := c.SearchNames(ctx, "WINGS", 0)
	if err != nil {
		t.Fatalf("SearchNames: %v", err)
	}
	if len(names) != 2 || names[0] != "Buffalo Wings" || names[1] != "Wings Combo" {
		t.Errorf("SearchNames = %v", names)
	}

	items, err := c.AllItems(ctx)
	if err != nil {
		t.Fatalf("AllItems: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("AllItems = %+v, want 3 distinct names", items)
	}
}
