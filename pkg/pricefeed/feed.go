// Package pricefeed simulates an external price source: every interval each
// instrument's price takes a bounded random step and the result is published.
package pricefeed

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/bookcast/pkg/bus"
	"github.com/uhyunpark/bookcast/pkg/topic"
	"github.com/uhyunpark/bookcast/pkg/util"
)

// PriceCache keeps the latest price and its history outside the process.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error
}

type Config struct {
	Interval time.Duration
	// MaxStep is the largest relative move per tick, e.g. 0.02 for ±2%.
	MaxStep float64
	Initial map[string]decimal.Decimal
	Seed    int64
	Clock   util.Clock
}

// DefaultPrices are the demo instruments and their opening prices.
func DefaultPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"BTC-USD": decimal.RequireFromString("45250.50"),
		"ETH-USD": decimal.RequireFromString("3150.25"),
		"BNB-USD": decimal.RequireFromString("320.75"),
		"ADA-USD": decimal.RequireFromString("0.65"),
		"SOL-USD": decimal.RequireFromString("98.50"),
		"AAPL":    decimal.RequireFromString("175.50"),
		"GOOGL":   decimal.RequireFromString("2750.25"),
		"MSFT":    decimal.RequireFromString("415.75"),
		"TSLA":    decimal.RequireFromString("245.30"),
		"AMZN":    decimal.RequireFromString("3420.80"),
	}
}

func DefaultConfig() Config {
	return Config{
		Interval: time.Second,
		MaxStep:  0.02,
		Initial:  DefaultPrices(),
		Seed:     time.Now().UnixNano(),
		Clock:    util.RealClock{},
	}
}

// Update is the price_update payload.
type Update struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

var minPrice = decimal.New(1, -2)

type Feed struct {
	cfg    Config
	pub    bus.Publisher
	cache  PriceCache
	logger *zap.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
}

// New builds a feed. cache may be nil.
func New(cfg Config, pub bus.Publisher, cache PriceCache, logger *zap.Logger) *Feed {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = def.MaxStep
	}
	if len(cfg.Initial) == 0 {
		cfg.Initial = def.Initial
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prices := make(map[string]decimal.Decimal, len(cfg.Initial))
	for sym, p := range cfg.Initial {
		prices[sym] = p
	}
	return &Feed{
		cfg:    cfg,
		pub:    pub,
		cache:  cache,
		logger: logger.Named("pricefeed"),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		prices: prices,
	}
}

func (f *Feed) Symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.prices))
	for sym := range f.prices {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (f *Feed) Price(symbol string) (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	return p, ok
}

// step moves every price once, in symbol order.
func (f *Feed) step(now time.Time) []Update {
	f.mu.Lock()
	defer f.mu.Unlock()

	syms := make([]string, 0, len(f.prices))
	for sym := range f.prices {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	out := make([]Update, 0, len(syms))
	for _, sym := range syms {
		change := (f.rng.Float64()*2 - 1) * f.cfg.MaxStep
		next := f.prices[sym].Mul(decimal.NewFromFloat(1 + change)).Round(2)
		if next.LessThan(minPrice) {
			next = minPrice
		}
		f.prices[sym] = next
		out = append(out, Update{Type: "price_update", Symbol: sym, Price: next, Timestamp: now.UnixMilli()})
	}
	return out
}

// Tick moves every price once and publishes the updates. Cache and publish
// failures are logged and skipped.
func (f *Feed) Tick(ctx context.Context) []Update {
	now := f.cfg.Clock.Now()
	updates := f.step(now)
	for _, u := range updates {
		if f.cache != nil {
			if err := f.cache.SetPrice(ctx, u.Symbol, u.Price, now); err != nil {
				f.logger.Warn("price_cache_failed", zap.String("symbol", u.Symbol), zap.Error(err))
			}
		}
		if f.pub == nil {
			continue
		}
		payload, err := json.Marshal(u)
		if err != nil {
			f.logger.Error("price_encode_failed", zap.Error(err))
			continue
		}
		for _, ch := range []string{topic.Prices(u.Symbol), topic.MarketData} {
			if err := f.pub.Publish(ctx, ch, payload); err != nil {
				f.logger.Warn("price_publish_failed", zap.String("channel", ch), zap.Error(err))
			}
		}
	}
	return updates
}

// Start ticks every Interval in the background until ctx is done or the
// returned cancel func is called.
func (f *Feed) Start(ctx context.Context) context.CancelFunc {
	feedCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(f.cfg.Interval)
		defer ticker.Stop()

		ticks := 0
		f.logger.Info("pricefeed_started", zap.Duration("interval", f.cfg.Interval), zap.Int("symbols", len(f.cfg.Initial)))
		for {
			select {
			case <-feedCtx.Done():
				f.logger.Info("pricefeed_stopped", zap.Int("ticks", ticks))
				return
			case <-ticker.C:
				f.Tick(feedCtx)
				ticks++
			}
		}
	}()
	return cancel
}
