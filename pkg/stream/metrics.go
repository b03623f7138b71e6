package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookcast_stream_connections",
		Help: "Open client connections.",
	})

	sweepClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookcast_stream_sweep_closed_total",
		Help: "Connections closed for missing a liveness probe.",
	})

	published = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcast_stream_published_total",
		Help: "Messages accepted for delivery, by kind.",
	}, []string{"kind"})

	dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcast_stream_dropped_total",
		Help: "Messages not delivered, by reason.",
	}, []string{"reason"})
)
