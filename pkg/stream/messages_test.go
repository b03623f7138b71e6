package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Inbound
	}{
		{"subscribe", `{"type":"subscribe","channel":"orderbook:BTC-USD"}`, Subscribe{Channel: "orderbook:BTC-USD"}},
		{"unsubscribe", `{"type":"unsubscribe","channel":"X"}`, Unsubscribe{Channel: "X"}},
		{"ping", `{"type":"ping"}`, Ping{}},
		{"unknown type", `{"type":"dance"}`, Unknown{Type: "dance"}},
		{"subscribe without channel", `{"type":"subscribe"}`, Unknown{Type: "subscribe", Err: errMissingChannel}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeInbound([]byte(tt.in)))
		})
	}

	t.Run("malformed", func(t *testing.T) {
		got, ok := DecodeInbound([]byte("not json")).(Unknown)
		assert.True(t, ok)
		assert.Error(t, got.Err)
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
}
