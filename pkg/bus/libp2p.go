package bus

import (
	"context"
	"encoding/json"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

const gossipTopic = "bookcast-events/1.0.0"

// wireMessage is what travels on the gossip topic.
type wireMessage struct {
	Channel string `json:"channel"`
	Payload []byte `json:"payload"`
}

type P2PConfig struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

// P2P shares events between gateway nodes over a GossipSub topic. Messages a
// node publishes are delivered to its own subscribers too.
type P2P struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	log   *zap.SugaredLogger
}

func NewP2P(ctx context.Context, cfg P2PConfig) (*P2P, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	t, err := ps.Join(gossipTopic)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return &P2P{h: h, ps: ps, topic: t, log: cfg.Logger}, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *P2P) Host() host.Host { return n.h }

func (n *P2P) Publish(ctx context.Context, channel string, payload []byte) error {
	data, err := json.Marshal(wireMessage{Channel: channel, Payload: payload})
	if err != nil {
		return err
	}
	return n.topic.Publish(ctx, data)
}

func (n *P2P) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := n.topic.Subscribe()
	if err != nil {
		return err
	}
	go func() {
		defer sub.Cancel()
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				return
			}
			var w wireMessage
			if err := json.Unmarshal(msg.Data, &w); err != nil {
				n.log.Debugw("gossip_decode_failed", "from", msg.ReceivedFrom.String(), "err", err)
				continue
			}
			handler(w.Channel, w.Payload)
		}
	}()
	return nil
}

func (n *P2P) Close() error {
	if err := n.topic.Close(); err != nil {
		n.log.Debugw("topic_close_failed", "err", err)
	}
	return n.h.Close()
}
