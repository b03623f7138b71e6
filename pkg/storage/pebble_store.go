package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/bookcast/pkg/orderbook"
)

// PebbleStore keeps the latest record of every order and the latest book
// snapshot per instrument on local disk.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// RecordOrder overwrites the order's record with its current state.
func (s *PebbleStore) RecordOrder(_ context.Context, o orderbook.Order) error {
	data, err := encode(o)
	if err != nil {
		return err
	}
	if err := s.db.Set(orderKey(o.Owner, o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// RecordSnapshot keeps only the newest snapshot of each instrument.
func (s *PebbleStore) RecordSnapshot(_ context.Context, snap orderbook.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := s.db.Set(bookKey(snap.Instrument), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadOrder returns false when the order was never recorded.
func (s *PebbleStore) LoadOrder(owner string, id uint64) (orderbook.Order, bool, error) {
	data, closer, err := s.db.Get(orderKey(owner, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return orderbook.Order{}, false, nil
	}
	if err != nil {
		return orderbook.Order{}, false, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()

	var o orderbook.Order
	if err := decode(data, &o); err != nil {
		return orderbook.Order{}, false, err
	}
	return o, true, nil
}

// LoadOrders returns up to limit of owner's orders, highest id first.
// limit <= 0 means no limit.
func (s *PebbleStore) LoadOrders(owner string, limit int) ([]orderbook.Order, error) {
	prefix := orderPrefix(owner)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []orderbook.Order
	for iter.Last(); iter.Valid(); iter.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var o orderbook.Order
		if err := decode(iter.Value(), &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *PebbleStore) LoadSnapshot(symbol string) (orderbook.Snapshot, bool, error) {
	data, closer, err := s.db.Get(bookKey(symbol))
	if errors.Is(err, pebble.ErrNotFound) {
		return orderbook.Snapshot{}, false, nil
	}
	if err != nil {
		return orderbook.Snapshot{}, false, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer closer.Close()

	var snap orderbook.Snapshot
	if err := decode(data, &snap); err != nil {
		return orderbook.Snapshot{}, false, err
	}
	return snap, true, nil
}
