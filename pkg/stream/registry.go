package stream

import (
	"sort"
	"sync"
)

// Registry maps channels to subscribed connections and back. A single lock
// covers both directions, so every operation is linearizable with the others.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[string]struct{} // channel -> conn ids
	conns    map[string]map[string]struct{} // conn id -> channels
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[string]struct{}),
		conns:    make(map[string]map[string]struct{}),
	}
}

// Register makes connID eligible for subscriptions. Subscribing an
// unregistered (or already dropped) connection is refused.
func (r *Registry) Register(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = make(map[string]struct{})
	}
}

// Subscribe adds connID to channel. Repeating it is harmless. Returns false
// when the connection is not registered.
func (r *Registry) Subscribe(connID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[connID]
	if !ok {
		return false
	}
	subs[channel] = struct{}{}
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		r.channels[channel] = members
	}
	members[connID] = struct{}{}
	return true
}

// Unsubscribe removes connID from channel and deletes the channel once empty.
// Returns false when connID was not subscribed.
func (r *Registry) Unsubscribe(connID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, ok := subs[channel]; !ok {
		return false
	}
	delete(subs, channel)
	r.removeMember(channel, connID)
	return true
}

func (r *Registry) removeMember(channel, connID string) {
	members := r.channels[channel]
	delete(members, connID)
	if len(members) == 0 {
		delete(r.channels, channel)
	}
}

// DropConnection removes connID from every channel it held and forgets it.
// It returns the channels the connection was subscribed to; a second call
// returns nil.
func (r *Registry) DropConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	held := make([]string, 0, len(subs))
	for ch := range subs {
		r.removeMember(ch, connID)
		held = append(held, ch)
	}
	sort.Strings(held)
	return held
}

// SubscribersOf returns a snapshot of the connections subscribed to channel.
func (r *Registry) SubscribersOf(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.channels[channel]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (r *Registry) HasChannel(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel]
	return ok
}

func (r *Registry) ChannelsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.conns[connID]
	out := make([]string, 0, len(subs))
	for ch := range subs {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) ChannelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
