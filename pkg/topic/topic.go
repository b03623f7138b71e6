// Package topic names the channels shared by producers and the stream dispatcher.
package topic

const (
	MarketData   = "market_data_updates"
	OrderUpdates = "order_updates"
	// TradeUpdates has no producer; the book never matches.
	TradeUpdates = "trade_updates"
)

// Book is the per-instrument book-mutation channel.
func Book(instrument string) string { return "orderbook:" + instrument }

// Orders is the per-instrument order-event channel.
func Orders(instrument string) string { return "orders:" + instrument }

// Prices is the per-instrument price-update channel.
func Prices(instrument string) string { return "prices:" + instrument }
