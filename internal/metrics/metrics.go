// Package metrics exposes the Prometheus instruments shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creditkeeper_orders_created_total",
		Help: "Credit orders created.",
	})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditkeeper_order_transitions_total",
		Help: "Order status transitions, labelled by resulting status.",
	}, []string{"status"})

	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creditkeeper_notifications_created_total",
		Help: "Durable notification rows appended.",
	})

	PushDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creditkeeper_push_delivered_total",
		Help: "Notifications delivered over a live websocket.",
	})

	PushMissed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creditkeeper_push_missed_total",
		Help: "Push attempts with no usable channel; recovered by polling.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "creditkeeper_ws_connections",
		Help: "Currently registered websocket channels.",
	})
)
