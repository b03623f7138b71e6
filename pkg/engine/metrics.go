package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcast_engine_orders_total",
		Help: "Order lifecycle events by instrument.",
	}, []string{"instrument", "event"})

	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookcast_engine_rejected_total",
		Help: "Placements rejected by validation.",
	})

	emitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookcast_engine_emit_failures_total",
		Help: "Events dropped or failed by stage (queue_full, stopped, journal, publish).",
	}, []string{"stage"})
)
