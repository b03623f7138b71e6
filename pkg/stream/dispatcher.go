package stream

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/uhyunpark/bookcast/pkg/bus"
)

// Dispatcher delivers messages to live connections. Delivery never blocks the
// caller and failures are counted, not returned.
type Dispatcher struct {
	m      *Manager
	logger *zap.Logger
}

// Publish sends payload to every current subscriber of channel and returns how
// many connections accepted it.
func (d *Dispatcher) Publish(channel string, payload json.RawMessage) int {
	ids := d.m.registry.SubscribersOf(channel)
	if len(ids) == 0 {
		return 0
	}
	b, err := json.Marshal(Envelope{Type: TypeBroadcast, Channel: channel, Data: payload})
	if err != nil {
		dropped.WithLabelValues("encode").Inc()
		d.logger.Warn("broadcast_encode_failed", zap.String("channel", channel), zap.Error(err))
		return 0
	}

	n := 0
	for _, id := range ids {
		c, ok := d.m.Lookup(id)
		if !ok {
			dropped.WithLabelValues("closed").Inc()
			continue
		}
		if c.enqueue(b) {
			n++
		}
	}
	published.WithLabelValues("broadcast").Add(float64(n))
	return n
}

// PublishToConnection sends msg to one connection only.
func (d *Dispatcher) PublishToConnection(connID string, msg any) bool {
	c, ok := d.m.Lookup(connID)
	if !ok {
		dropped.WithLabelValues("closed").Inc()
		return false
	}
	b, err := json.Marshal(msg)
	if err != nil {
		dropped.WithLabelValues("encode").Inc()
		d.logger.Warn("direct_encode_failed", zap.String("client_id", connID), zap.Error(err))
		return false
	}
	if !c.enqueue(b) {
		return false
	}
	published.WithLabelValues("direct").Inc()
	return true
}

// BroadcastAll sends msg to every live connection regardless of subscriptions.
func (d *Dispatcher) BroadcastAll(msg any) int {
	b, err := json.Marshal(msg)
	if err != nil {
		dropped.WithLabelValues("encode").Inc()
		d.logger.Warn("broadcast_all_encode_failed", zap.Error(err))
		return 0
	}
	n := 0
	for _, c := range d.m.live() {
		if c.enqueue(b) {
			n++
		}
	}
	published.WithLabelValues("all").Add(float64(n))
	return n
}

// Forward publishes everything sub delivers until ctx is done.
func (d *Dispatcher) Forward(ctx context.Context, sub bus.Subscriber) error {
	return sub.Subscribe(ctx, func(channel string, payload []byte) {
		if !json.Valid(payload) {
			dropped.WithLabelValues("encode").Inc()
			d.logger.Warn("bus_payload_not_json", zap.String("channel", channel))
			return
		}
		d.Publish(channel, payload)
	})
}
