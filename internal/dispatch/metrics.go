package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	changesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_changes_total",
		Help: "Change-feed rows seen by the dispatcher, by outcome.",
	}, []string{"outcome"})

	listenerResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_listener_results_total",
		Help: "Listener invocations, by listener and result.",
	}, []string{"listener", "result"})
)

func init() {
	prometheus.MustRegister(changesTotal, listenerResults)
}
