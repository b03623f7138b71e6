// Package stream serves real-time channels to client connections: it tracks
// subscriptions, owns the live connection table with its liveness sweep, and
// fans published payloads out to subscribers.
package stream

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	HeartbeatInterval time.Duration
	SendQueueSize     int
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		SendQueueSize:     256,
	}
}

type Manager struct {
	cfg        Config
	logger     *zap.Logger
	registry   *Registry
	dispatcher *Dispatcher

	mu    sync.RWMutex
	conns map[string]*Conn

	sweeping atomic.Bool
}

func NewManager(cfg Config, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger.Named("stream"),
		registry: NewRegistry(),
		conns:    make(map[string]*Conn),
	}
	m.dispatcher = &Dispatcher{m: m, logger: m.logger}
	return m
}

func (m *Manager) Registry() *Registry { return m.registry }

func (m *Manager) Dispatcher() *Dispatcher { return m.dispatcher }

// Accept takes ownership of t: the connection is registered, greeted and
// serviced by its own reader and writer until it closes.
func (m *Manager) Accept(t Transport) *Conn {
	c := newConn(uuid.NewString(), t, m.cfg.SendQueueSize, time.Now())
	t.OnPong(c.markAlive)

	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()
	m.registry.Register(c.id)
	liveConnections.Inc()

	m.dispatcher.PublishToConnection(c.id, ConnectionMessage{
		Type:     TypeConnection,
		Status:   "connected",
		ClientID: c.id,
	})
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))

	go m.writeLoop(c)
	go m.readLoop(c)

	m.logger.Info("client_connected", zap.String("client_id", c.id))
	return c
}

func (m *Manager) Lookup(id string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Manager) live() []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out
}

// ConnInfo describes one live connection.
type ConnInfo struct {
	ID       string    `json:"id"`
	State    string    `json:"state"`
	OpenedAt time.Time `json:"opened_at"`
	LastSeen time.Time `json:"last_seen"`
	Channels []string  `json:"channels"`
}

// Connections lists live connections, oldest first.
func (m *Manager) Connections() []ConnInfo {
	conns := m.live()
	out := make([]ConnInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnInfo{
			ID:       c.id,
			State:    c.State().String(),
			OpenedAt: c.OpenedAt(),
			LastSeen: c.LastSeen(),
			Channels: m.registry.ChannelsOf(c.id),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Close tears down the connection with the given id. It reports whether this
// call closed it; unknown or already closed ids are a no-op.
func (m *Manager) Close(id string) bool {
	c, ok := m.Lookup(id)
	if !ok {
		return false
	}
	return m.closeConn(c, "closed_by_server")
}

// closeConn is safe to call any number of times from any goroutine. Only the
// first call does the teardown and returns true.
func (m *Manager) closeConn(c *Conn, reason string) bool {
	if !c.beginClose() {
		return false
	}
	held := m.registry.DropConnection(c.id)

	m.mu.Lock()
	delete(m.conns, c.id)
	m.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		m.logger.Debug("transport_close_failed", zap.String("client_id", c.id), zap.Error(err))
	}
	c.state.Store(int32(StateClosed))
	liveConnections.Dec()

	m.logger.Info("client_disconnected",
		zap.String("client_id", c.id),
		zap.String("reason", reason),
		zap.Strings("channels", held))
	return true
}

func (m *Manager) readLoop(c *Conn) {
	for {
		b, err := c.transport.ReadMessage()
		if err != nil {
			m.closeConn(c, "read_failed")
			return
		}
		m.handle(c, b)
	}
}

func (m *Manager) writeLoop(c *Conn) {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			if err := c.transport.WriteMessage(b); err != nil {
				dropped.WithLabelValues("write_failed").Inc()
				m.closeConn(c, "write_failed")
				return
			}
		case <-c.probe:
			if err := c.transport.Ping(); err != nil {
				m.closeConn(c, "ping_failed")
				return
			}
		}
	}
}

func (m *Manager) handle(c *Conn, b []byte) {
	switch msg := DecodeInbound(b).(type) {
	case Subscribe:
		if !m.registry.Subscribe(c.id, msg.Channel) {
			return
		}
		m.dispatcher.PublishToConnection(c.id, SubscriptionMessage{Type: TypeSubscriptionConfirmed, Channel: msg.Channel})
		m.logger.Debug("client_subscribed", zap.String("client_id", c.id), zap.String("channel", msg.Channel))
	case Unsubscribe:
		m.registry.Unsubscribe(c.id, msg.Channel)
		m.dispatcher.PublishToConnection(c.id, SubscriptionMessage{Type: TypeUnsubscriptionConfirmed, Channel: msg.Channel})
	case Ping:
		c.markAlive()
		m.dispatcher.PublishToConnection(c.id, PongMessage{Type: TypePong})
	case Unknown:
		m.logger.Debug("unknown_client_message",
			zap.String("client_id", c.id),
			zap.String("type", msg.Type),
			zap.Error(msg.Err))
	}
}

// Sweep closes every connection that did not answer the previous probe and
// probes the rest. Overlapping calls return immediately with 0.
func (m *Manager) Sweep() int {
	if !m.sweeping.CompareAndSwap(false, true) {
		return 0
	}
	defer m.sweeping.Store(false)

	closed := 0
	for _, c := range m.live() {
		if !c.alive.Swap(false) {
			m.closeConn(c, "heartbeat_timeout")
			sweepClosed.Inc()
			closed++
			continue
		}
		c.requestProbe()
	}
	if closed > 0 {
		m.logger.Info("heartbeat_sweep", zap.Int("closed", closed), zap.Int("live", m.Len()))
	}
	return closed
}

// Run sweeps every HeartbeatInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Shutdown closes every live connection.
func (m *Manager) Shutdown() {
	for _, c := range m.live() {
		m.closeConn(c, "shutdown")
	}
}
