package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookswap"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Engine operations by name and result kind.",
		},
		[]string{"op", "result"},
	)

	cascadeRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_rejections_total",
			Help:      "Pending requests closed by a cascade, by triggering operation.",
		},
		[]string{"trigger"},
	)

	compensations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_compensations_total",
			Help:      "Completion code claims released after a failed finalization.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "System message deliveries by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, transitions, cascadeRejections, compensations, notifications)
	})
}

func IncHTTP(endpoint string, code int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// ObserveTransition counts an operation outcome; result is "ok" or an error kind.
func ObserveTransition(op, result string) {
	transitions.WithLabelValues(op, result).Inc()
}

func AddCascadeRejections(trigger string, n int64) {
	if n > 0 {
		cascadeRejections.WithLabelValues(trigger).Add(float64(n))
	}
}

func IncCompensation() {
	compensations.Inc()
}

func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}
