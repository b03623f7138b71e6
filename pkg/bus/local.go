package bus

import (
	"context"
	"sync"
)

// Local is an in-process bus. Publish calls every handler synchronously, so
// delivery order equals publish order.
type Local struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func NewLocal() *Local {
	return &Local{handlers: make(map[int]Handler)}
}

func (l *Local) Publish(_ context.Context, channel string, payload []byte) error {
	l.mu.RLock()
	hs := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		hs = append(hs, h)
	}
	l.mu.RUnlock()

	for _, h := range hs {
		h(channel, payload)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, handler Handler) error {
	l.mu.Lock()
	id := l.next
	l.next++
	l.handlers[id] = handler
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}()
	return nil
}

func (l *Local) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = make(map[int]Handler)
	return nil
}
