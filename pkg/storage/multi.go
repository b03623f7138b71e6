package storage

import (
	"context"
	"errors"

	"github.com/uhyunpark/bookcast/pkg/orderbook"
)

// Journal is anything that records order and book changes.
type Journal interface {
	RecordOrder(ctx context.Context, o orderbook.Order) error
	RecordSnapshot(ctx context.Context, snap orderbook.Snapshot) error
}

// Multi fans every record out to each journal and joins their errors.
type Multi []Journal

func (m Multi) RecordOrder(ctx context.Context, o orderbook.Order) error {
	var errs []error
	for _, j := range m {
		if err := j.RecordOrder(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RecordSnapshot(ctx context.Context, snap orderbook.Snapshot) error {
	var errs []error
	for _, j := range m {
		if err := j.RecordSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
