package engine

import "sync/atomic"

// sequencer hands out order ids for the lifetime of the process, starting at 1.
type sequencer struct {
	last atomic.Uint64
}

func (s *sequencer) next() uint64 {
	return s.last.Add(1)
}
