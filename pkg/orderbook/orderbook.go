// Package orderbook holds the per-instrument price ladders. A Book never matches:
// every order rests at its own price on its own side.
package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel aggregates every resting order at one price on one side.
// Orders are kept in arrival order.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Orders   []*Order
}

func (lvl *PriceLevel) view() LevelView {
	orders := make([]Order, len(lvl.Orders))
	for i, o := range lvl.Orders {
		orders[i] = *o
	}
	return LevelView{Price: lvl.Price, Quantity: lvl.Quantity, Count: len(lvl.Orders), Orders: orders}
}

func (lvl *PriceLevel) total() LevelView {
	return LevelView{Price: lvl.Price, Quantity: lvl.Quantity, Count: len(lvl.Orders)}
}

// LevelView is a read-only copy of a PriceLevel. Orders is empty in a
// Summary.
type LevelView struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Count    int             `json:"count"`
	Orders   []Order         `json:"orders,omitempty"`
}

// Snapshot is a point-in-time copy of a Book.
type Snapshot struct {
	Instrument string      `json:"symbol"`
	Timestamp  int64       `json:"timestamp"` // Unix milliseconds
	Bids       []LevelView `json:"bids"`      // Sorted high to low
	Asks       []LevelView `json:"asks"`      // Sorted low to high
}

// Book is one instrument's bid and ask ladders. It is not safe for concurrent
// use; the engine serializes access per instrument.
type Book struct {
	Instrument string

	bids *ladder
	asks *ladder
}

func NewBook(instrument string) *Book {
	return &Book{
		Instrument: instrument,
		bids:       newLadder(Buy),
		asks:       newLadder(Sell),
	}
}

func (b *Book) side(s Side) *ladder {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Insert appends o to the level at its price on its side, creating the level if
// needed, and grows the level's aggregate quantity. The opposite side is never touched.
func (b *Book) Insert(o *Order) *PriceLevel {
	lvl := b.side(o.Side).getOrCreate(o.Price)
	lvl.Orders = append(lvl.Orders, o)
	lvl.Quantity = lvl.Quantity.Add(o.Quantity)
	return lvl
}

// Remove takes o out of its level and subtracts its quantity. A level left with
// no orders is deleted. Returns false if o was not resting.
func (b *Book) Remove(o *Order) bool {
	l := b.side(o.Side)
	lvl, ok := l.get(o.Price)
	if !ok {
		return false
	}
	for i, rest := range lvl.Orders {
		if rest.ID != o.ID {
			continue
		}
		lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
		lvl.Quantity = lvl.Quantity.Sub(o.Quantity)
		if len(lvl.Orders) == 0 || !lvl.Quantity.IsPositive() {
			l.remove(lvl.Price)
		}
		return true
	}
	return false
}

// Level returns a copy of the level at price on side s.
func (b *Book) Level(s Side, price decimal.Decimal) (LevelView, bool) {
	lvl, ok := b.side(s).get(price)
	if !ok {
		return LevelView{}, false
	}
	return lvl.view(), true
}

func (b *Book) BestBid() (decimal.Decimal, bool) {
	lvl, ok := b.bids.best()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.Price, true
}

func (b *Book) BestAsk() (decimal.Decimal, bool) {
	lvl, ok := b.asks.best()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.Price, true
}

// Depth returns the number of price levels on side s.
func (b *Book) Depth(s Side) int {
	return b.side(s).len()
}

// Snapshot copies every level together with its orders.
func (b *Book) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Instrument: b.Instrument,
		Timestamp:  now.UnixMilli(),
		Bids:       b.bids.views(true),
		Asks:       b.asks.views(true),
	}
}

// Summary copies level prices, aggregate quantities and order counts only.
// Its cost grows with the number of levels, not the number of orders.
func (b *Book) Summary(now time.Time) Snapshot {
	return Snapshot{
		Instrument: b.Instrument,
		Timestamp:  now.UnixMilli(),
		Bids:       b.bids.views(false),
		Asks:       b.asks.views(false),
	}
}
