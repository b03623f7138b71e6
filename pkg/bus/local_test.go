package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_DeliversInOrder(t *testing.T) {
	b := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	require.NoError(t, b.Subscribe(ctx, func(channel string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, channel+"="+string(payload))
	}))

	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, b.Publish(ctx, "prices:X", []byte(p)))
	}
	mu.Lock()
	assert.Equal(t, []string{"prices:X=1", "prices:X=2", "prices:X=3"}, got)
	mu.Unlock()
}

func TestLocal_SubscriptionEndsWithContext(t *testing.T) {
	b := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Subscribe(ctx, func(string, []byte) {}))
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	require.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Publish(context.Background(), "x", []byte("{}")))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "carrier-pigeon"}, nil)
	require.Error(t, err)

	b, err := Open(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, b)
	require.NoError(t, b.Close())
}
