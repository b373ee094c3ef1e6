package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking lifecycle.
type BookingMetrics struct {
	transitions    *prometheus.CounterVec
	availability   *prometheus.CounterVec
	sideEffects    *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	actionLatency  *prometheus.HistogramVec
	sweeperChanged *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caremarket",
			Subsystem: "bookings",
			Name:      "transitions_total",
			Help:      "Booking actions by name and result code",
		}, []string{"action", "result"}),
		availability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caremarket",
			Subsystem: "availability",
			Name:      "computations_total",
			Help:      "Availability queries by cache outcome",
		}, []string{"cache"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caremarket",
			Subsystem: "bookings",
			Name:      "side_effect_failures_total",
			Help:      "Failed fire-and-forget side effects after a committed mutation",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caremarket",
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox deliveries by event type and status",
		}, []string{"event_type", "status"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caremarket",
			Subsystem: "bookings",
			Name:      "action_latency_seconds",
			Help:      "Latency of booking actions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		sweeperChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caremarket",
			Subsystem: "sweeper",
			Name:      "bookings_total",
			Help:      "Bookings moved by the sweeper",
		}, []string{"to_status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.availability, m.sideEffects, m.deliveries, m.actionLatency, m.sweeperChanged)
	return m
}

func (m *BookingMetrics) ObserveAction(action, result string, seconds float64) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, result).Inc()
	m.actionLatency.WithLabelValues(action).Observe(seconds)
}

// ObserveAvailability implements availability.Recorder.
func (m *BookingMetrics) ObserveAvailability(outcome string) {
	if m == nil {
		return
	}
	m.availability.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) SideEffectFailed(kind string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObserveDelivery(eventType string, ok bool) {
	if m == nil {
		return
	}
	status := "delivered"
	if !ok {
		status = "failed"
	}
	m.deliveries.WithLabelValues(eventType, status).Inc()
}

func (m *BookingMetrics) ObserveSweep(toStatus string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sweeperChanged.WithLabelValues(toStatus).Add(float64(count))
}
