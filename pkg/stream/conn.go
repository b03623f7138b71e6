package stream

import (
	"sync/atomic"
	"time"
)

// Transport is one client's bidirectional message pipe. ReadMessage is only
// called from the connection's reader goroutine; WriteMessage and Ping only
// from its writer goroutine.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Ping sends a transport-level liveness probe.
	Ping() error
	// OnPong registers fn to run whenever the peer answers a probe.
	OnPong(fn func())
	Close() error
}

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is a live client connection. Outbound messages go through a bounded
// queue drained by a single writer, so per-connection order is FIFO.
type Conn struct {
	id        string
	transport Transport
	opened    time.Time

	send  chan []byte
	probe chan struct{}
	done  chan struct{}

	state    atomic.Int32
	alive    atomic.Bool
	lastSeen atomic.Int64
}

func newConn(id string, t Transport, queue int, now time.Time) *Conn {
	c := &Conn{
		id:        id,
		transport: t,
		opened:    now,
		send:      make(chan []byte, queue),
		probe:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	c.alive.Store(true)
	c.lastSeen.Store(now.UnixMilli())
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) OpenedAt() time.Time { return c.opened }

// LastSeen is the last time the peer proved it was alive.
func (c *Conn) LastSeen() time.Time { return time.UnixMilli(c.lastSeen.Load()) }

func (c *Conn) markAlive() {
	c.alive.Store(true)
	c.lastSeen.Store(time.Now().UnixMilli())
}

// enqueue never blocks. It drops b when the connection is closing or its
// queue is full.
func (c *Conn) enqueue(b []byte) bool {
	select {
	case <-c.done:
		dropped.WithLabelValues("closed").Inc()
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	case <-c.done:
		dropped.WithLabelValues("closed").Inc()
		return false
	default:
		dropped.WithLabelValues("queue_full").Inc()
		return false
	}
}

func (c *Conn) requestProbe() {
	select {
	case c.probe <- struct{}{}:
	default:
	}
}

// beginClose moves the connection to Closing exactly once.
func (c *Conn) beginClose() bool {
	for {
		s := c.state.Load()
		if State(s) >= StateClosing {
			return false
		}
		if c.state.CompareAndSwap(s, int32(StateClosing)) {
			close(c.done)
			return true
		}
	}
}
