package stream

import (
	"encoding/json"
	"errors"
)

// Outbound message types.
const (
	TypeConnection              = "connection"
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypePong                    = "pong"
	TypeBroadcast               = "broadcast"
)

type ConnectionMessage struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	ClientID string `json:"clientId"`
}

type SubscriptionMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type PongMessage struct {
	Type string `json:"type"`
}

// Envelope wraps a published payload for one channel.
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Inbound is a decoded client message: Subscribe, Unsubscribe, Ping or Unknown.
type Inbound interface {
	inbound()
}

type Subscribe struct{ Channel string }

type Unsubscribe struct{ Channel string }

type Ping struct{}

// Unknown carries anything that is not a well-formed client message.
type Unknown struct {
	Type string
	Err  error
}

func (Subscribe) inbound()   {}
func (Unsubscribe) inbound() {}
func (Ping) inbound()        {}
func (Unknown) inbound()     {}

var errMissingChannel = errors.New("missing channel")

// DecodeInbound parses one client frame. It never fails; malformed input
// decodes to Unknown.
func DecodeInbound(b []byte) Inbound {
	var raw struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Unknown{Err: err}
	}

	switch raw.Type {
	case "subscribe":
		if raw.Channel == "" {
			return Unknown{Type: raw.Type, Err: errMissingChannel}
		}
		return Subscribe{Channel: raw.Channel}
	case "unsubscribe":
		if raw.Channel == "" {
			return Unknown{Type: raw.Type, Err: errMissingChannel}
		}
		return Unsubscribe{Channel: raw.Channel}
	case "ping":
		return Ping{}
	default:
		return Unknown{Type: raw.Type}
	}
}
