package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var authEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_events_total",
	Help: "Session lifecycle operations by outcome.",
}, []string{"event", "outcome"})

func observe(event string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
	}
	authEvents.WithLabelValues(event, outcome).Inc()
}

func outcomeOf(err error) string {
	switch code, _ := classify(err); code {
	case "internal":
		return "error"
	default:
		return code
	}
}
