// Package demo generates a reproducible sample dataset and loads it into the
// object store so both backends have something to answer from.
package demo

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Order struct {
	OrderID   int64   `json:"order_id" parquet:"order_id"`
	Customer  string  `json:"customer" parquet:"customer"`
	SKU       string  `json:"sku" parquet:"sku"`
	Quantity  int64   `json:"qty" parquet:"qty"`
	Amount    float64 `json:"amount" parquet:"amount"`
	Country   string  `json:"country" parquet:"country"`
	Status    string  `json:"status" parquet:"status"`
	OrderedAt string  `json:"ordered_at" parquet:"ordered_at"`
}

type product struct {
	sku       string
	unitPrice float64
}

var catalog = []product{
	{sku: "a-1", unitPrice: 4.5},
	{sku: "b-7", unitPrice: 12},
	{sku: "c-3", unitPrice: 29.99},
	{sku: "d-9", unitPrice: 89},
}

type Generator struct {
	rnd                 *rand.Rand
	customerCardinality int
	sequence            int64
	now                 func() time.Time
}

func NewGenerator(seed int64, customerCardinality int) *Generator {
	if customerCardinality <= 0 {
		customerCardinality = 1
	}
	return &Generator{
		rnd:                 rand.New(rand.NewSource(seed)),
		customerCardinality: customerCardinality,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

func (g *Generator) NextOrder() Order {
	g.sequence++
	item := catalog[g.rnd.Intn(len(catalog))]
	qty := int64(g.rnd.Intn(5) + 1)
	// Orders are spread over the 30 days before now.
	orderedAt := g.now().Add(-time.Duration(g.rnd.Intn(30*24)) * time.Hour)

	return Order{
		OrderID:   g.sequence,
		Customer:  fmt.Sprintf("customer-%03d", g.rnd.Intn(g.customerCardinality)+1),
		SKU:       item.sku,
		Quantity:  qty,
		Amount:    round2(item.unitPrice * float64(qty)),
		Country:   pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
		Status:    g.pickStatus(),
		OrderedAt: orderedAt.Format(time.RFC3339),
	}
}

func (g *Generator) Orders(n int) []Order {
	orders := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, g.NextOrder())
	}
	return orders
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 60:
		return "delivered"
	case p < 80:
		return "shipped"
	case p < 95:
		return "open"
	default:
		return "cancelled"
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
