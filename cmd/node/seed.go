package main

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/bookcast/pkg/engine"
)

const (
	seedOwner  = "market-maker"
	seedLevels = 5
)

var (
	seedStep = decimal.RequireFromString("0.001") // 0.1% between levels
	seedQty  = decimal.RequireFromString("1.5")
)

// seedBook rests a small ladder on both sides of every reference price and
// returns how many orders were placed.
func seedBook(ctx context.Context, eng *engine.Engine, refs map[string]decimal.Decimal) int {
	symbols := make([]string, 0, len(refs))
	for sym := range refs {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	placed := 0
	for _, sym := range symbols {
		ref := refs[sym]
		for i := 1; i <= seedLevels; i++ {
			off := ref.Mul(seedStep).Mul(decimal.NewFromInt(int64(i)))
			levels := []struct {
				side  string
				price decimal.Decimal
			}{
				{"BUY", ref.Sub(off).Round(2)},
				{"SELL", ref.Add(off).Round(2)},
			}
			for _, l := range levels {
				if !l.price.IsPositive() {
					continue
				}
				_, err := eng.Place(ctx, engine.PlaceRequest{
					Owner:      seedOwner,
					Instrument: sym,
					Side:       l.side,
					Type:       "LIMIT",
					Quantity:   seedQty,
					Price:      l.price,
				})
				if err == nil {
					placed++
				}
			}
		}
	}
	return placed
}
