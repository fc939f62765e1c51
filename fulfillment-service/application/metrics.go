package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fulfillmentsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fulfillments_terminal_total",
	Help: "Fulfillments that reached a terminal status, by status",
}, []string{"status"})
