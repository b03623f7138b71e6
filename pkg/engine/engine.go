// Package engine accepts order placement and cancellation, keeps one resting
// book per instrument and emits change events in mutation order.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/bookcast/pkg/orderbook"
	"github.com/uhyunpark/bookcast/pkg/orderstore"
	"github.com/uhyunpark/bookcast/pkg/topic"
	"github.com/uhyunpark/bookcast/pkg/util"
)

// Publisher delivers an encoded event to a channel. Failures stay inside the emitter.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Journal records order and book changes outside the engine (cache, audit log).
type Journal interface {
	RecordOrder(ctx context.Context, o orderbook.Order) error
	RecordSnapshot(ctx context.Context, snap orderbook.Snapshot) error
}

type Config struct {
	// ReclaimOnCancel removes a cancelled order's quantity from its level.
	// Off by default: the order stays listed with status CANCELLED.
	ReclaimOnCancel bool
	EventBuffer     int
	Clock           util.Clock
}

func DefaultConfig() Config {
	return Config{
		EventBuffer: 1024,
		Clock:       util.RealClock{},
	}
}

// PlaceRequest is an order as received from an already authenticated caller.
type PlaceRequest struct {
	Owner      string
	Instrument string
	Side       string
	Type       string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
}

type instrument struct {
	mu   sync.Mutex
	book *orderbook.Book
}

type Engine struct {
	cfg     Config
	store   *orderstore.Store
	pub     Publisher
	journal Journal
	logger  *zap.Logger

	seq   sequencer
	ready atomic.Bool

	mu    sync.RWMutex
	books map[string]*instrument

	events  chan event
	stopped chan struct{}
}

// New builds an engine. pub and journal may be nil.
func New(cfg Config, store *orderstore.Store, pub Publisher, journal Journal, logger *zap.Logger) *Engine {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if store == nil {
		store = orderstore.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		pub:     pub,
		journal: journal,
		logger:  logger.Named("engine"),
		books:   make(map[string]*instrument),
		events:  make(chan event, cfg.EventBuffer),
		stopped: make(chan struct{}),
	}
}

func (e *Engine) MarkReady() {
	if e.ready.CompareAndSwap(false, true) {
		e.logger.Info("engine_ready")
	}
}

func (e *Engine) Ready() bool { return e.ready.Load() }

// ReadyAfter marks the engine ready once d has elapsed on the engine clock,
// unless ctx ends first.
func (e *Engine) ReadyAfter(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-e.cfg.Clock.After(d):
		e.MarkReady()
	}
}

// instrument returns the book for sym, creating it on first use.
func (e *Engine) instrument(sym string) *instrument {
	e.mu.RLock()
	inst, ok := e.books[sym]
	e.mu.RUnlock()
	if ok {
		return inst
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if inst, ok = e.books[sym]; ok {
		return inst
	}
	inst = &instrument{book: orderbook.NewBook(sym)}
	e.books[sym] = inst
	return inst
}

func (e *Engine) lookup(sym string) (*instrument, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	inst, ok := e.books[sym]
	return inst, ok
}

func validate(req PlaceRequest) (*orderbook.Order, error) {
	if req.Owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidOrder)
	}
	if req.Instrument == "" {
		return nil, fmt.Errorf("%w: missing symbol", ErrInvalidOrder)
	}
	side, ok := orderbook.ParseSide(req.Side)
	if !ok {
		return nil, fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidOrder, req.Side)
	}
	typ, ok := orderbook.ParseOrderType(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, req.Type)
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidOrder)
	}
	if typ == orderbook.Limit && !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: limit order needs a positive price", ErrInvalidOrder)
	}
	return &orderbook.Order{
		Owner:      req.Owner,
		Instrument: req.Instrument,
		Side:       side,
		Type:       typ,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Status:     orderbook.Pending,
	}, nil
}

// Place validates req and rests the order on its instrument's book. Aggressive
// prices are not matched.
func (e *Engine) Place(ctx context.Context, req PlaceRequest) (orderbook.Order, error) {
	if !e.Ready() {
		return orderbook.Order{}, ErrServiceUnavailable
	}
	o, err := validate(req)
	if err != nil {
		rejectedTotal.Inc()
		return orderbook.Order{}, err
	}

	inst := e.instrument(o.Instrument)
	inst.mu.Lock()
	defer inst.mu.Unlock()

	now := e.cfg.Clock.Now()
	o.ID = e.seq.next()
	o.CreatedAt = now
	if err := e.store.Add(o); err != nil {
		return orderbook.Order{}, err
	}
	if o.Rests() {
		inst.book.Insert(o)
	}

	placed := *o
	e.emitOrder(OrderPlaced, placed, now)
	e.emitBook(inst.book, now)
	ordersTotal.WithLabelValues(o.Instrument, "placed").Inc()

	e.logger.Debug("order_placed",
		zap.Uint64("order_id", placed.ID),
		zap.String("symbol", placed.Instrument),
		zap.Stringer("side", placed.Side),
		zap.String("price", placed.Price.String()),
		zap.String("quantity", placed.Quantity.String()))
	return placed, nil
}

// Cancel flips a pending order owned by owner to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, id uint64, owner string) (orderbook.Order, error) {
	if !e.Ready() {
		return orderbook.Order{}, ErrServiceUnavailable
	}
	o, ok := e.store.Pending(id)
	if !ok {
		return orderbook.Order{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if o.Owner != owner {
		return orderbook.Order{}, fmt.Errorf("%w: %d", ErrForbidden, id)
	}

	inst := e.instrument(o.Instrument)
	inst.mu.Lock()
	defer inst.mu.Unlock()

	now := e.cfg.Clock.Now()
	// A concurrent cancel of the same id may have won the race for the lock.
	o, err := e.store.MarkCancelled(id, now)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if e.cfg.ReclaimOnCancel && o.Rests() {
		inst.book.Remove(o)
	}

	cancelled := *o
	e.emitOrder(OrderCancelled, cancelled, now)
	e.emitBook(inst.book, now)
	ordersTotal.WithLabelValues(o.Instrument, "cancelled").Inc()

	e.logger.Debug("order_cancelled", zap.Uint64("order_id", id), zap.String("symbol", cancelled.Instrument))
	return cancelled, nil
}

// Snapshot copies the instrument's book. Unknown instruments yield an empty book.
func (e *Engine) Snapshot(sym string) orderbook.Snapshot {
	now := e.cfg.Clock.Now()
	inst, ok := e.lookup(sym)
	if !ok {
		return orderbook.Snapshot{
			Instrument: sym,
			Timestamp:  now.UnixMilli(),
			Bids:       []orderbook.LevelView{},
			Asks:       []orderbook.LevelView{},
		}
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.book.Snapshot(now)
}

func (e *Engine) BestBid(sym string) (decimal.Decimal, bool) {
	inst, ok := e.lookup(sym)
	if !ok {
		return decimal.Zero, false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.book.BestBid()
}

func (e *Engine) BestAsk(sym string) (decimal.Decimal, bool) {
	inst, ok := e.lookup(sym)
	if !ok {
		return decimal.Zero, false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.book.BestAsk()
}

func (e *Engine) OrdersByOwner(owner string) []orderbook.Order {
	return e.store.ByOwner(owner)
}

func (e *Engine) Order(id uint64) (orderbook.Order, bool) {
	return e.store.Get(id)
}

// HasInstrument reports whether sym has seen an order since startup.
func (e *Engine) HasInstrument(sym string) bool {
	_, ok := e.lookup(sym)
	return ok
}

// Instruments lists every instrument that has seen an order, sorted.
func (e *Engine) Instruments() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for sym := range e.books {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) Counts() (active, cancelled int) {
	return e.store.Counts()
}

// emitOrder and emitBook run under the instrument lock so the queue preserves
// mutation order per instrument.
func (e *Engine) emitOrder(typ EventType, o orderbook.Order, now time.Time) {
	e.enqueue(event{order: &OrderEvent{
		Type:      typ,
		OrderID:   o.ID,
		Owner:     o.Owner,
		Order:     o,
		Timestamp: now.UnixMilli(),
	}})
}

// emitBook broadcasts level totals only; per-order detail is served by Snapshot.
func (e *Engine) emitBook(b *orderbook.Book, now time.Time) {
	snap := b.Summary(now)
	e.enqueue(event{snap: &snap})
}

// enqueue never blocks: a slow publisher must not stall the instrument lock.
// Events that do not fit are dropped and counted.
func (e *Engine) enqueue(ev event) {
	select {
	case <-e.stopped:
		emitFailures.WithLabelValues("stopped").Inc()
		e.logger.Debug("event_dropped_after_stop")
		return
	default:
	}
	select {
	case e.events <- ev:
	default:
		emitFailures.WithLabelValues("queue_full").Inc()
		e.logger.Debug("event_dropped_queue_full")
	}
}

// Run drains the event queue until ctx is done. Journal writes and publishes
// happen here, never under a book lock.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			e.drain(context.WithoutCancel(ctx))
			return
		case ev := <-e.events:
			e.dispatch(ctx, ev)
		}
	}
}

func (e *Engine) drain(ctx context.Context) {
	for {
		select {
		case ev := <-e.events:
			e.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev event) {
	switch {
	case ev.order != nil:
		if e.journal != nil {
			if err := e.journal.RecordOrder(ctx, ev.order.Order); err != nil {
				emitFailures.WithLabelValues("journal").Inc()
				e.logger.Warn("journal_order_failed", zap.Uint64("order_id", ev.order.OrderID), zap.Error(err))
			}
		}
		e.publish(ctx, ev.order, topic.Orders(ev.order.Order.Instrument), topic.OrderUpdates)
	case ev.snap != nil:
		if e.journal != nil {
			if err := e.journal.RecordSnapshot(ctx, *ev.snap); err != nil {
				emitFailures.WithLabelValues("journal").Inc()
				e.logger.Warn("journal_snapshot_failed", zap.String("symbol", ev.snap.Instrument), zap.Error(err))
			}
		}
		update := BookUpdate{Type: bookUpdateType, Symbol: ev.snap.Instrument, Data: *ev.snap}
		e.publish(ctx, update, topic.Book(ev.snap.Instrument), topic.MarketData)
	}
}

func (e *Engine) publish(ctx context.Context, v any, channels ...string) {
	if e.pub == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("event_encode_failed", zap.Error(err))
		return
	}
	for _, ch := range channels {
		if err := e.pub.Publish(ctx, ch, payload); err != nil {
			emitFailures.WithLabelValues("publish").Inc()
			e.logger.Warn("event_publish_failed", zap.String("channel", ch), zap.Error(err))
		}
	}
}
