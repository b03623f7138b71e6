package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/bookcast/pkg/auth"
	"github.com/uhyunpark/bookcast/pkg/engine"
	"github.com/uhyunpark/bookcast/pkg/orderbook"
	"github.com/uhyunpark/bookcast/pkg/storage"
	"github.com/uhyunpark/bookcast/pkg/stream"
)

const serviceName = "bookcast"

// PriceSource reports the latest simulated price of a symbol.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, bool)
}

// Archive reads orders and books that outlive the process.
type Archive interface {
	LoadOrder(owner string, id uint64) (orderbook.Order, bool, error)
	LoadOrders(owner string, limit int) ([]orderbook.Order, error)
	LoadSnapshot(symbol string) (orderbook.Snapshot, bool, error)
}

// Cache is the shared view of books, orders and prices kept in Redis.
type Cache interface {
	Snapshot(ctx context.Context, symbol string) (orderbook.Snapshot, bool, error)
	ActiveOrders(ctx context.Context, owner string) ([]orderbook.Order, error)
	Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error)
	PriceHistory(ctx context.Context, symbol string, limit int) ([]storage.PricePoint, error)
}

// archivedOrdersLimit bounds the fallback listing of past orders.
const archivedOrdersLimit = 100

type Config struct {
	CORSOrigins []string
}

// Deps are the components the server exposes. Prices, Cache and Archive may
// be nil. Reads go to the engine first; Cache and Archive answer for what the
// engine no longer holds after a restart.
type Deps struct {
	Engine   *engine.Engine
	Streams  *stream.Manager
	Verifier auth.Verifier
	Prices   PriceSource
	Cache    Cache
	Archive  Archive
}

// Server handles the REST API and WebSocket upgrades.
type Server struct {
	cfg      Config
	deps     Deps
	streams  *stream.Manager
	router   *mux.Router
	validate *validator.Validate
	logger   *zap.Logger
	http     *http.Server
}

func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		streams:  deps.Streams,
		router:   mux.NewRouter(),
		validate: validator.New(),
		logger:   logger.Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public market data
	api.HandleFunc("/orderbook/{symbol}", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/orderbook/{symbol}/top", s.handleGetTop).Methods("GET")
	api.HandleFunc("/instruments", s.handleGetInstruments).Methods("GET")
	api.HandleFunc("/prices/{symbol}", s.handleGetPrice).Methods("GET")
	api.HandleFunc("/prices/{symbol}/history", s.handleGetPriceHistory).Methods("GET")
	api.HandleFunc("/connections", s.handleGetConnections).Methods("GET")

	// Authenticated order intake
	orders := api.PathPrefix("/orders").Subrouter()
	orders.Use(auth.Middleware(s.deps.Verifier))
	orders.HandleFunc("", s.handlePlaceOrder).Methods("POST")
	orders.HandleFunc("", s.handleGetOrders).Methods("GET")
	orders.HandleFunc("/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	orders.HandleFunc("/{id:[0-9]+}", s.handleCancelOrder).Methods("DELETE")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api_server_starting", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ==============================
// Orders
// ==============================

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.Side = strings.ToUpper(strings.TrimSpace(req.Side))
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	qty, err := decimal.NewFromString(req.Quantity.String())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", "quantity is not a number")
		return
	}
	price := decimal.Zero
	if req.Price != "" {
		if price, err = decimal.NewFromString(req.Price.String()); err != nil {
			respondError(w, http.StatusBadRequest, "invalid order", "price is not a number")
			return
		}
	}

	o, err := s.deps.Engine.Place(r.Context(), engine.PlaceRequest{
		Owner:      id.UserID,
		Instrument: req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   qty,
		Price:      price,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSONStatus(w, http.StatusCreated, OrderResponse{
		Success: true,
		Message: "Order submitted successfully",
		Order:   o,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	orderID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	o, err := s.deps.Engine.Cancel(r.Context(), orderID, id.UserID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, OrderResponse{Success: true, Message: "Order cancelled successfully", Order: o})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	orders := s.deps.Engine.OrdersByOwner(id.UserID)
	source := sourceEngine

	if len(orders) == 0 && s.deps.Archive != nil {
		archived, err := s.deps.Archive.LoadOrders(id.UserID, archivedOrdersLimit)
		if err != nil {
			s.logger.Warn("archive_orders_failed", zap.String("user", id.UserID), zap.Error(err))
		} else if len(archived) > 0 {
			orders, source = archived, sourceArchive
		}
	}
	if len(orders) == 0 && s.deps.Cache != nil {
		cached, err := s.deps.Cache.ActiveOrders(r.Context(), id.UserID)
		if err != nil {
			s.logger.Warn("cache_orders_failed", zap.String("user", id.UserID), zap.Error(err))
		} else if len(cached) > 0 {
			orders, source = cached, sourceCache
		}
	}
	if orders == nil {
		orders = []orderbook.Order{}
	}
	respondJSON(w, OrdersResponse{UserID: id.UserID, Source: source, Orders: orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	orderID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	if o, ok := s.deps.Engine.Order(orderID); ok {
		if o.Owner != id.UserID {
			respondError(w, http.StatusForbidden, "access denied", "")
			return
		}
		respondJSON(w, OrderResponse{Success: true, Order: o})
		return
	}
	if s.deps.Archive != nil {
		o, ok, err := s.deps.Archive.LoadOrder(id.UserID, orderID)
		if err != nil {
			s.logger.Warn("archive_order_failed", zap.Uint64("order_id", orderID), zap.Error(err))
		} else if ok {
			respondJSON(w, OrderResponse{Success: true, Order: o})
			return
		}
	}
	respondError(w, http.StatusNotFound, "order not found", strconv.FormatUint(orderID, 10))
}

// ==============================
// Market data
// ==============================

// handleGetOrderbook serves the live book. An instrument the engine has not
// seen since startup falls back to the cached book, then the archived one.
// Those fallbacks carry level totals without per-order detail.
func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if s.deps.Engine.HasInstrument(symbol) {
		respondJSON(w, s.deps.Engine.Snapshot(symbol))
		return
	}
	if s.deps.Cache != nil {
		snap, ok, err := s.deps.Cache.Snapshot(r.Context(), symbol)
		if err != nil {
			s.logger.Warn("cache_snapshot_failed", zap.String("symbol", symbol), zap.Error(err))
		} else if ok {
			respondJSON(w, snap)
			return
		}
	}
	if s.deps.Archive != nil {
		snap, ok, err := s.deps.Archive.LoadSnapshot(symbol)
		if err != nil {
			s.logger.Warn("archive_snapshot_failed", zap.String("symbol", symbol), zap.Error(err))
		} else if ok {
			respondJSON(w, snap)
			return
		}
	}
	respondJSON(w, s.deps.Engine.Snapshot(symbol))
}

func (s *Server) handleGetTop(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	top := TopOfBook{Symbol: symbol, Timestamp: time.Now().UnixMilli()}
	if bid, ok := s.deps.Engine.BestBid(symbol); ok {
		top.BestBid = &bid
	}
	if ask, ok := s.deps.Engine.BestAsk(symbol); ok {
		top.BestAsk = &ask
	}
	if top.BestBid != nil && top.BestAsk != nil {
		spread := top.BestAsk.Sub(*top.BestBid)
		top.Spread = &spread
	}
	respondJSON(w, top)
}

func (s *Server) handleGetInstruments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string][]string{"instruments": s.deps.Engine.Instruments()})
}

// handleGetPrice prefers the in-process feed and falls back to the price
// another node left in the cache.
func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if s.deps.Prices == nil && s.deps.Cache == nil {
		respondError(w, http.StatusServiceUnavailable, "price feed disabled", "")
		return
	}
	if s.deps.Prices != nil {
		if p, ok := s.deps.Prices.Price(symbol); ok {
			respondJSON(w, PriceResponse{Symbol: symbol, Price: p, Timestamp: time.Now().UnixMilli()})
			return
		}
	}
	if s.deps.Cache != nil {
		p, ok, err := s.deps.Cache.Price(r.Context(), symbol)
		if err != nil {
			s.logger.Warn("cache_price_failed", zap.String("symbol", symbol), zap.Error(err))
		} else if ok {
			respondJSON(w, PriceResponse{Symbol: symbol, Price: p, Timestamp: time.Now().UnixMilli()})
			return
		}
	}
	respondError(w, http.StatusNotFound, "unknown symbol", symbol)
}

func (s *Server) handleGetPriceHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache == nil {
		respondError(w, http.StatusServiceUnavailable, "price history disabled", "")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "invalid limit", "limit must be 1..1000")
			return
		}
		limit = n
	}
	points, err := s.deps.Cache.PriceHistory(r.Context(), mux.Vars(r)["symbol"], limit)
	if err != nil {
		s.logger.Warn("price_history_failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "price history unavailable", "")
		return
	}
	respondJSON(w, points)
}

func (s *Server) handleGetConnections(w http.ResponseWriter, r *http.Request) {
	conns := s.streams.Connections()
	respondJSON(w, ConnectionsResponse{Count: len(conns), Connections: conns, Timestamp: time.Now().UnixMilli()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, cancelled := s.deps.Engine.Counts()
	respondJSON(w, HealthResponse{
		Status:          "ok",
		Service:         serviceName,
		Ready:           s.deps.Engine.Ready(),
		Connections:     s.streams.Len(),
		Channels:        s.streams.Registry().ChannelCount(),
		ActiveOrders:    active,
		CancelledOrders: cancelled,
		Timestamp:       time.Now().UnixMilli(),
	})
}

// ==============================
// Helper Functions
// ==============================

func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder):
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
	case errors.Is(err, engine.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, engine.ErrForbidden):
		respondError(w, http.StatusForbidden, "access denied", err.Error())
	case errors.Is(err, engine.ErrServiceUnavailable):
		respondError(w, http.StatusServiceUnavailable, "service not ready", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSONStatus(w, status, ErrorResponse{Error: error, Message: message})
}
