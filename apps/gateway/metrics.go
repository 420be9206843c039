package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatline_gateway_messages_published_total",
		Help: "Messages accepted from clients and published to Kafka.",
	})

	sendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatline_gateway_send_failures_total",
		Help: "Client sends rejected or failed to publish.",
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatline_gateway_active_connections",
		Help: "Currently registered websocket connections.",
	})
)
