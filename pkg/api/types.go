package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/bookcast/pkg/orderbook"
	"github.com/uhyunpark/bookcast/pkg/stream"
)

// PlaceOrderRequest is the body of POST /api/v1/orders. Numbers may be sent
// as JSON numbers or numeric strings.
type PlaceOrderRequest struct {
	Symbol   string      `json:"symbol" validate:"required,max=32"`
	Side     string      `json:"side" validate:"required,oneof=BUY SELL"`
	Type     string      `json:"type" validate:"omitempty,oneof=LIMIT MARKET"`
	Quantity json.Number `json:"quantity" validate:"required,numeric"`
	Price    json.Number `json:"price" validate:"omitempty,numeric"`
}

type OrderResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Order   orderbook.Order `json:"order"`
}

// Where an order listing came from.
const (
	sourceEngine  = "engine"
	sourceArchive = "archive"
	sourceCache   = "cache"
)

type OrdersResponse struct {
	UserID string            `json:"userId"`
	Source string            `json:"source"`
	Orders []orderbook.Order `json:"orders"`
}

// TopOfBook carries nil prices for empty sides.
type TopOfBook struct {
	Symbol    string           `json:"symbol"`
	BestBid   *decimal.Decimal `json:"bestBid"`
	BestAsk   *decimal.Decimal `json:"bestAsk"`
	Spread    *decimal.Decimal `json:"spread"`
	Timestamp int64            `json:"timestamp"`
}

type PriceResponse struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	Service         string `json:"service"`
	Ready           bool   `json:"ready"`
	Connections     int    `json:"connections"`
	Channels        int    `json:"channels"`
	ActiveOrders    int    `json:"activeOrders"`
	CancelledOrders int    `json:"cancelledOrders"`
	Timestamp       int64  `json:"timestamp"`
}

type ConnectionsResponse struct {
	Count       int               `json:"count"`
	Connections []stream.ConnInfo `json:"connections"`
	Timestamp   int64             `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
