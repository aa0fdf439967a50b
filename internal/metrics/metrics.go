package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "petshop"

// Outcome labels of booking submissions.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
)

// Result labels of occupancy refreshes.
const (
	RefreshSuccess = "success"
	RefreshStale   = "stale"
)

var (
	once sync.Once

	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Remote API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submissions_total",
			Help:      "Booking submit attempts by outcome.",
		},
		[]string{"outcome"},
	)

	occupancyRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occupancy_refresh_total",
			Help:      "Occupancy refreshes by result.",
		},
		[]string{"result"},
	)

	cartMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation.",
		},
		[]string{"op"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(remoteRequests, bookingSubmissions, occupancyRefreshes, cartMutations)
	})
}

// IncRemote increments the counter for a remote endpoint label.
func IncRemote(endpoint string) {
	remoteRequests.WithLabelValues(endpoint).Inc()
}

func IncBooking(outcome string) {
	bookingSubmissions.WithLabelValues(outcome).Inc()
}

func IncRefresh(result string) {
	occupancyRefreshes.WithLabelValues(result).Inc()
}

func IncCart(op string) {
	cartMutations.WithLabelValues(op).Inc()
}
