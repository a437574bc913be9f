package demo

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/chatdb/chatdb/internal/docstore"
	"github.com/chatdb/chatdb/internal/storage"
)

const (
	OrdersName    = "orders"
	CustomersName = "customers"

	parquetContentType = "application/vnd.apache.parquet"
)

type SeedResult struct {
	Orders      int
	Customers   int
	ParquetKey  string
	Collections []string
}

// Seed writes orders as a parquet table and as a document collection, plus a
// customers collection summarizing them. Existing demo objects are replaced.
func Seed(ctx context.Context, objects storage.ObjectStore, orders []Order) (SeedResult, error) {
	if objects == nil {
		return SeedResult{}, fmt.Errorf("object store is required")
	}
	documents, err := docstore.New(objects)
	if err != nil {
		return SeedResult{}, err
	}

	data, err := EncodeOrdersParquet(orders)
	if err != nil {
		return SeedResult{}, err
	}
	key, err := storage.BuildTableFilePath(OrdersName, "part-00000")
	if err != nil {
		return SeedResult{}, err
	}
	if _, err := objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType}); err != nil {
		return SeedResult{}, fmt.Errorf("store %s: %w", key, err)
	}

	orderDocs := make([]any, 0, len(orders))
	for _, order := range orders {
		orderDocs = append(orderDocs, order)
	}
	if err := documents.Replace(ctx, OrdersName, orderDocs); err != nil {
		return SeedResult{}, err
	}

	customers := summarizeCustomers(orders)
	if err := documents.Replace(ctx, CustomersName, customers); err != nil {
		return SeedResult{}, err
	}

	return SeedResult{
		Orders:      len(orders),
		Customers:   len(customers),
		ParquetKey:  key,
		Collections: []string{CustomersName, OrdersName},
	}, nil
}

type customerSummary struct {
	Name       string  `json:"name"`
	Country    string  `json:"country"`
	Orders     int     `json:"orders"`
	TotalSpent float64 `json:"total_spent"`
}

func summarizeCustomers(orders []Order) []any {
	byName := map[string]*customerSummary{}
	for _, order := range orders {
		summary, ok := byName[order.Customer]
		if !ok {
			summary = &customerSummary{Name: order.Customer, Country: order.Country}
			byName[order.Customer] = summary
		}
		summary.Orders++
		summary.TotalSpent = round2(summary.TotalSpent + order.Amount)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	docs := make([]any, 0, len(names))
	for _, name := range names {
		docs = append(docs, *byName[name])
	}
	return docs
}
