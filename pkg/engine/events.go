package engine

import (
	"github.com/uhyunpark/bookcast/pkg/orderbook"
)

type EventType string

const (
	OrderPlaced    EventType = "ORDER_PLACED"
	OrderCancelled EventType = "ORDER_CANCELLED"
)

// OrderEvent is published on orders:<instrument> and order_updates.
type OrderEvent struct {
	Type      EventType       `json:"type"`
	OrderID   uint64          `json:"orderId"`
	Owner     string          `json:"userId"`
	Order     orderbook.Order `json:"order"`
	Timestamp int64           `json:"timestamp"`
}

// BookUpdate is published on orderbook:<instrument> and market_data_updates.
type BookUpdate struct {
	Type   string             `json:"type"`
	Symbol string             `json:"symbol"`
	Data   orderbook.Snapshot `json:"data"`
}

const bookUpdateType = "orderbook_update"

// event is one entry of the emitter queue. Exactly one of order/snap is set.
type event struct {
	order *OrderEvent
	snap  *orderbook.Snapshot
}
