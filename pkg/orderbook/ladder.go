package orderbook

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// ladder keeps one side's price levels ordered best price first:
// bids high to low, asks low to high. One level per price.
type ladder struct {
	levels *btree.BTreeG[*PriceLevel]
}

func newLadder(side Side) *ladder {
	less := func(a, b *PriceLevel) bool { return a.Price.LessThan(b.Price) }
	if side == Buy {
		less = func(a, b *PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
	}
	// Locking is done by the owner of the Book.
	return &ladder{levels: btree.NewBTreeGOptions(less, btree.Options{NoLocks: true})}
}

func (l *ladder) get(price decimal.Decimal) (*PriceLevel, bool) {
	return l.levels.Get(&PriceLevel{Price: price})
}

func (l *ladder) getOrCreate(price decimal.Decimal) *PriceLevel {
	if lvl, ok := l.get(price); ok {
		return lvl
	}
	lvl := &PriceLevel{Price: price, Quantity: decimal.Zero}
	l.levels.Set(lvl)
	return lvl
}

func (l *ladder) remove(price decimal.Decimal) {
	l.levels.Delete(&PriceLevel{Price: price})
}

func (l *ladder) best() (*PriceLevel, bool) {
	return l.levels.Min()
}

func (l *ladder) len() int { return l.levels.Len() }

// views copies every level, best first. Without withOrders only the level
// totals are copied.
func (l *ladder) views(withOrders bool) []LevelView {
	out := make([]LevelView, 0, l.levels.Len())
	l.levels.Scan(func(lvl *PriceLevel) bool {
		if withOrders {
			out = append(out, lvl.view())
		} else {
			out = append(out, lvl.total())
		}
		return true
	})
	return out
}
