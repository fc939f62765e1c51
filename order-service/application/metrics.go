package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_terminal_total",
		Help: "Orders that reached a terminal status, by status",
	}, []string{"status"})

	ordersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Orders accepted for processing",
	})
)
