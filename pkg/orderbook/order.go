package orderbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side int

const (
	SideUnknown Side = iota
	Buy
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide accepts "BUY"/"SELL" in any case.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(s) {
	case "BUY":
		return Buy, true
	case "SELL":
		return Sell, true
	default:
		return SideUnknown, false
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, ok := ParseSide(string(b))
	if !ok {
		return fmt.Errorf("unknown side %q", b)
	}
	*s = v
	return nil
}

type OrderType int

const (
	Limit OrderType = iota + 1
	Market
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

// ParseOrderType defaults an empty type to LIMIT.
func ParseOrderType(s string) (OrderType, bool) {
	switch strings.ToUpper(s) {
	case "", "LIMIT":
		return Limit, true
	case "MARKET":
		return Market, true
	default:
		return 0, false
	}
}

func (t OrderType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *OrderType) UnmarshalText(b []byte) error {
	v, ok := ParseOrderType(string(b))
	if !ok {
		return fmt.Errorf("unknown order type %q", b)
	}
	*t = v
	return nil
}

type Status int

const (
	Pending Status = iota + 1
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PENDING":
		*s = Pending
	case "CANCELLED":
		*s = Cancelled
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Order is a resting order. Records are never deleted; cancellation only flips Status.
type Order struct {
	ID          uint64          `json:"orderId"`
	Owner       string          `json:"userId"`
	Instrument  string          `json:"symbol"`
	Side        Side            `json:"side"`
	Type        OrderType       `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"timestamp"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
}

// Rests reports whether the order has a price level to sit at.
func (o *Order) Rests() bool {
	return o.Price.IsPositive()
}
