package storage

import "fmt"

// Pebble key schema:
//
//	ord:<len(owner)>:<owner>:<orderID>   -> latest order record
//	book:<symbol>                        -> latest book snapshot
//
// The owner is length-prefixed so an owner containing ':' can never share a
// scan prefix with another owner. Order ids are zero-padded (20 digits) so one
// owner's orders sort by id.
const (
	prefixOrder = "ord:"
	prefixBook  = "book:"
)

func orderKey(owner string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", orderPrefix(owner), id))
}

func orderPrefix(owner string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", prefixOrder, len(owner), owner))
}

func bookKey(symbol string) []byte {
	return []byte(prefixBook + symbol)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Redis key schema, shared with the dashboard's other services.
func activeOrdersKey(owner string) string    { return "orders:active:" + owner }
func cancelledOrdersKey(owner string) string { return "orders:cancelled:" + owner }
func snapshotCacheKey(symbol string) string  { return "orderbook:" + symbol }
func priceKey(symbol string) string          { return "price:" + symbol }
func priceHistoryKey(symbol string) string   { return "price_history:" + symbol }
