// Package orderstore tracks orders by id and status, independent of how the
// book presents them. Nothing is ever deleted: cancelled orders move to a
// cancelled set and stay queryable.
package orderstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uhyunpark/bookcast/pkg/orderbook"
)

var (
	ErrNotPending = errors.New("order is not pending")
	ErrDuplicate  = errors.New("order id already recorded")
)

type Store struct {
	mu        sync.RWMutex
	active    map[uint64]*orderbook.Order
	cancelled map[uint64]*orderbook.Order
	byOwner   map[string][]uint64
}

func New() *Store {
	return &Store{
		active:    make(map[uint64]*orderbook.Order),
		cancelled: make(map[uint64]*orderbook.Order),
		byOwner:   make(map[string][]uint64),
	}
}

func (s *Store) Add(o *orderbook.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[o.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicate, o.ID)
	}
	if _, ok := s.cancelled[o.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicate, o.ID)
	}
	s.active[o.ID] = o
	s.byOwner[o.Owner] = append(s.byOwner[o.Owner], o.ID)
	return nil
}

// Pending returns the live record of a PENDING order. Callers must hold the
// order's instrument lock before mutating it.
func (s *Store) Pending(id uint64) (*orderbook.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.active[id]
	return o, ok
}

// Get returns a copy of the order in either set.
func (s *Store) Get(id uint64) (orderbook.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.active[id]; ok {
		return *o, true
	}
	if o, ok := s.cancelled[id]; ok {
		return *o, true
	}
	return orderbook.Order{}, false
}

// MarkCancelled flips a PENDING order to CANCELLED and moves it to the cancelled set.
func (s *Store) MarkCancelled(id uint64, at time.Time) (*orderbook.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotPending, id)
	}
	delete(s.active, id)
	o.Status = orderbook.Cancelled
	o.CancelledAt = &at
	s.cancelled[id] = o
	return o, nil
}

// ByOwner returns copies of every order placed by owner, newest first.
func (s *Store) ByOwner(owner string) []orderbook.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[owner]
	out := make([]orderbook.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := s.active[id]; ok {
			out = append(out, *o)
		} else if o, ok := s.cancelled[id]; ok {
			out = append(out, *o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Counts() (active, cancelled int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active), len(s.cancelled)
}
