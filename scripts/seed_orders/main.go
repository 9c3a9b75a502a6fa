// Command seed_orders fills a local database with sample orders so the queries of
// a starter configuration have data to work on.
//
//	go run ./scripts/seed_orders -target postgres -uri postgres://yetii@localhost:5432/yetii
//	go run ./scripts/seed_orders -target mongodb -uri mongodb://localhost:27017
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type order struct {
	ID        int64     `bson:"id"`
	Status    string    `bson:"status"`
	Total     float64   `bson:"total"`
	CreatedAt time.Time `bson:"created_at"`
}

func main() {
	var (
		target   string
		uri      string
		database string
		count    int
	)
	flag.StringVar(&target, "target", "postgres", "Database to seed: postgres or mongodb")
	flag.StringVar(&uri, "uri", "", "Connection string (defaults to a local server)")
	flag.StringVar(&database, "db", "yetii", "MongoDB database name")
	flag.IntVar(&count, "count", 25, "Number of orders to generate")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	orders := generateOrders(count)

	var err error
	switch target {
	case "postgres":
		if uri == "" {
			uri = "postgres://yetii@localhost:5432/yetii?sslmode=disable"
		}
		err = seedPostgres(ctx, uri, orders)
	case "mongodb":
		if uri == "" {
			uri = "mongodb://localhost:27017"
		}
		err = seedMongo(ctx, uri, database, orders)
	default:
		err = fmt.Errorf("unknown target %q", target)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("inserted %d orders into %s\n", len(orders), target)
	fmt.Printf("example order id for queries: %d\n", orders[0].ID)
}

func generateOrders(count int) []order {
	statuses := []string{"open", "paid", "shipped", "closed"}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	base := time.Now().Unix() * 1000

	orders := make([]order, 0, count)
	for i := 0; i < count; i++ {
		orders = append(orders, order{
			ID:        base + int64(i),
			Status:    statuses[rng.Intn(len(statuses))],
			Total:     float64(10+rng.Intn(4900)) / 100.0,
			CreatedAt: time.Now().Add(-time.Duration(rng.Intn(720)) * time.Hour).UTC(),
		})
	}
	return orders
}

func seedPostgres(ctx context.Context, uri string, orders []order) error {
	conn, err := pgx.Connect(ctx, uri)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY,
		status TEXT NOT NULL,
		total NUMERIC(10, 2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`); err != nil {
		return fmt.Errorf("create table failed: %w", err)
	}

	rows := make([][]any, len(orders))
	for i, o := range orders {
		rows[i] = []any{o.ID, o.Status, o.Total, o.CreatedAt}
	}
	_, err = conn.CopyFrom(ctx, pgx.Identifier{"orders"}, []string{"id", "status", "total", "created_at"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

func seedMongo(ctx context.Context, uri, database string, orders []order) error {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	docs := make([]any, len(orders))
	for i, o := range orders {
		docs[i] = o
	}
	if _, err := client.Database(database).Collection("orders").InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}
