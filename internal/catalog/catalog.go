// Package catalog reads item names from the restaurant MongoDB database: the
// products collection and the line items embedded in orders.
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection and field names used by the catalog queries.
const (
	ProductsCollection = "products"
	OrdersCollection   = "orders"

	orderLinesField = "details"
)

// Item sources.
const (
	SourceProduct   = "product"
	SourceOrderItem = "order_item"
)

const connectTimeout = 10 * time.Second

// Item is a distinct item name and where it was found.
type Item struct {
	Name   string
	Source string
}

// Catalog is a read-only view of the item names in one database.
type Catalog struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string) (*Catalog, error) {
	if uri == "" {
		return nil, fmt.Errorf("connecting to catalog: empty MongoDB URI")
	}
	if database == "" {
		return nil, fmt.Errorf("connecting to catalog: empty database name")
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	return &Catalog{client: client, db: client.Database(database)}, nil
}

// Close disconnects from MongoDB.
func (c *Catalog) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping checks the server is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// SearchNames returns the distinct product and ordered item names containing
// term, case-insensitively, sorted. limit bounds the product matches and the
// order-line matches separately; zero or less means 20.
func (c *Catalog) SearchNames(ctx context.Context, term string, limit int) ([]string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	set := make(map[string]struct{})

	cur, err := c.db.Collection(ProductsCollection).Find(ctx, productFilter(term), productFindOptions(limit))
	if err != nil {
		return nil, fmt.Errorf("searching products for %q: %w", term, err)
	}
	var products []struct {
		Name string `bson:"name"`
	}
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("reading products for %q: %w", term, err)
	}
	for _, p := range products {
		set[p.Name] = struct{}{}
	}

	names, err := c.orderItemNames(ctx, orderNamesPipeline(term, limit))
	if err != nil {
		return nil, fmt.Errorf("searching orders for %q: %w", term, err)
	}
	for _, n := range names {
		set[n] = struct{}{}
	}

	return sortedNames(set), nil
}

// AllItems returns every distinct product name and every distinct item name
// appearing in an order. A name found in both places is reported once, as a
// product.
func (c *Catalog) AllItems(ctx context.Context) ([]Item, error) {
	raw, err := c.db.Collection(ProductsCollection).Distinct(ctx, "name", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("listing product names: %w", err)
	}
	seen := make(map[string]struct{}, len(raw))
	var items []Item
	for _, v := range raw {
		name, ok := v.(string)
		if !ok || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		items = append(items, Item{Name: name, Source: SourceProduct})
	}

	orderNames, err := c.orderItemNames(ctx, orderNamesPipeline("", 0))
	if err != nil {
		return nil, fmt.Errorf("listing ordered item names: %w", err)
	}
	slices.Sort(orderNames)
	for _, name := range orderNames {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		items = append(items, Item{Name: name, Source: SourceOrderItem})
	}
	return items, nil
}

func (c *Catalog) orderItemNames(ctx context.Context, pipeline mongo.Pipeline) ([]string, error) {
	cur, err := c.db.Collection(OrdersCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var groups []struct {
		ID any `bson:"_id"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		if s, ok := g.ID.(string); ok && s != "" {
			names = append(names, s)
		}
	}
	return names, nil
}

// containsPattern matches term literally anywhere in a string, ignoring case.
func containsPattern(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

func productFilter(term string) bson.M {
	return bson.M{"name": containsPattern(term)}
}

func productFindOptions(limit int) *options.FindOptions {
	return options.Find().
		SetProjection(bson.M{"name": 1, "_id": 0}).
		SetLimit(int64(limit))
}

// orderNamesPipeline groups order line items by name. An empty term matches
// every line; a non-positive limit returns all groups.
func orderNamesPipeline(term string, limit int) mongo.Pipeline {
	p := mongo.Pipeline{
		{{Key: "$unwind", Value: "$" + orderLinesField}},
	}
	if term != "" {
		p = append(p, bson.D{{Key: "$match", Value: bson.M{orderLinesField + ".name": containsPattern(term)}}})
	}
	p = append(p, bson.D{{Key: "$group", Value: bson.M{"_id": "$" + orderLinesField + ".name"}}})
	if limit > 0 {
		p = append(p, bson.D{{Key: "$limit", Value: limit}})
	}
	return p
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}
