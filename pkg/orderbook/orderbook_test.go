package orderbook

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nextID uint64

func newOrder(side Side, price, qty string) *Order {
	nextID++
	return &Order{
		ID:         nextID,
		Owner:      "u1",
		Instrument: "X",
		Side:       side,
		Type:       Limit,
		Price:      decimal.RequireFromString(price),
		Quantity:   decimal.RequireFromString(qty),
		Status:     Pending,
		CreatedAt:  time.Now(),
	}
}

func TestBook_SamePriceAggregatesInArrivalOrder(t *testing.T) {
	b := NewBook("X")
	first := newOrder(Buy, "100", "1.0")
	second := newOrder(Buy, "100.00", "0.5")
	b.Insert(first)
	b.Insert(second)

	snap := b.Snapshot(time.Now())
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, snap.Bids[0].Quantity.Equal(decimal.RequireFromString("1.5")))
	require.Len(t, snap.Bids[0].Orders, 2)
	assert.Equal(t, first.ID, snap.Bids[0].Orders[0].ID)
	assert.Equal(t, second.ID, snap.Bids[0].Orders[1].ID)
	assert.Empty(t, snap.Asks)
}

func TestBook_NoCrossing(t *testing.T) {
	b := NewBook("X")
	b.Insert(newOrder(Buy, "105", "1"))
	b.Insert(newOrder(Sell, "100", "1"))

	assert.Equal(t, 1, b.Depth(Buy))
	assert.Equal(t, 1, b.Depth(Sell))

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, "105", bid.String())
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "100", ask.String())
}

func TestBook_BestPricesEmpty(t *testing.T) {
	b := NewBook("X")
	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestBook_LaddersStaySorted(t *testing.T) {
	b := NewBook("X")
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		side := Buy
		if r.Intn(2) == 0 {
			side = Sell
		}
		price := decimal.NewFromInt(int64(90 + r.Intn(20))).Add(decimal.New(int64(r.Intn(4))*25, -2))
		o := newOrder(side, price.String(), "1")
		b.Insert(o)
	}

	snap := b.Snapshot(time.Now())
	seen := map[string]bool{}
	for i := 1; i < len(snap.Bids); i++ {
		assert.True(t, snap.Bids[i-1].Price.GreaterThan(snap.Bids[i].Price), "bids must be strictly descending")
	}
	for i := 1; i < len(snap.Asks); i++ {
		assert.True(t, snap.Asks[i-1].Price.LessThan(snap.Asks[i].Price), "asks must be strictly ascending")
	}
	for _, lvl := range snap.Bids {
		key := lvl.Price.String()
		assert.False(t, seen[key], "duplicate bid level %s", key)
		seen[key] = true

		sum := decimal.Zero
		for _, o := range lvl.Orders {
			sum = sum.Add(o.Quantity)
		}
		assert.True(t, sum.Equal(lvl.Quantity))
	}
}

func TestBook_RemoveReclaimsLevel(t *testing.T) {
	b := NewBook("X")
	a := newOrder(Sell, "101", "2")
	c := newOrder(Sell, "101", "3")
	b.Insert(a)
	b.Insert(c)

	require.True(t, b.Remove(a))
	lvl, ok := b.Level(Sell, decimal.NewFromInt(101))
	require.True(t, ok)
	assert.Equal(t, "3", lvl.Quantity.String())
	require.Len(t, lvl.Orders, 1)
	assert.Equal(t, c.ID, lvl.Orders[0].ID)

	require.True(t, b.Remove(c))
	_, ok = b.Level(Sell, decimal.NewFromInt(101))
	assert.False(t, ok)
	assert.Equal(t, 0, b.Depth(Sell))

	assert.False(t, b.Remove(c), "second remove is a miss")
}

func TestBook_SummaryOmitsOrders(t *testing.T) {
	b := NewBook("X")
	b.Insert(newOrder(Buy, "100", "1"))
	b.Insert(newOrder(Buy, "100", "2"))
	b.Insert(newOrder(Buy, "99", "4"))
	b.Insert(newOrder(Sell, "101", "3"))

	sum := b.Summary(time.UnixMilli(42))
	assert.Equal(t, int64(42), sum.Timestamp)
	require.Len(t, sum.Bids, 2)
	assert.Equal(t, "100", sum.Bids[0].Price.String())
	assert.Equal(t, "3", sum.Bids[0].Quantity.String())
	assert.Equal(t, 2, sum.Bids[0].Count)
	assert.Nil(t, sum.Bids[0].Orders)
	require.Len(t, sum.Asks, 1)
	assert.Equal(t, 1, sum.Asks[0].Count)

	full := b.Snapshot(time.UnixMilli(42))
	assert.Equal(t, 2, full.Bids[0].Count)
	assert.Len(t, full.Bids[0].Orders, 2)
}

func TestSide_Text(t *testing.T) {
	tests := []struct {
		in   string
		want Side
		ok   bool
	}{
		{"BUY", Buy, true},
		{"sell", Sell, true},
		{"HOLD", SideUnknown, false},
		{"", SideUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSide(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
