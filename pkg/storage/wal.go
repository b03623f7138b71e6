package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/uhyunpark/bookcast/pkg/orderbook"
)

// FileJournal appends one JSON line per order change to a file. Snapshots
// are not written; they are derived state.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

type journalLine struct {
	At    time.Time       `json:"at"`
	Order orderbook.Order `json:"order"`
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (w *FileJournal) RecordOrder(_ context.Context, o orderbook.Order) error {
	line, err := encode(journalLine{At: time.Now().UTC(), Order: o})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintln(w.f, string(line)); err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	return nil
}

func (w *FileJournal) RecordSnapshot(context.Context, orderbook.Snapshot) error { return nil }

func (w *FileJournal) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
