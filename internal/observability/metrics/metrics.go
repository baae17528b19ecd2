package metrics

import "github.com/prometheus/client_golang/prometheus"

// AppointmentMetrics exposes counters/histograms for the lifecycle manager.
type AppointmentMetrics struct {
	transitionsTotal   *prometheus.CounterVec
	conflictsTotal     prometheus.Counter
	auditFailuresTotal prometheus.Counter
	checkinTotal       *prometheus.CounterVec
	transitionLatency  *prometheus.HistogramVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Status transition requests by source state, target state and outcome",
		}, []string{"from", "to", "outcome"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "appointments",
			Name:      "slot_conflicts_total",
			Help:      "Scheduling attempts rejected because the doctor slot was taken",
		}),
		auditFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "appointments",
			Name:      "audit_write_failures_total",
			Help:      "History writes that failed after the status was committed",
		}),
		checkinTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "appointments",
			Name:      "checkin_evaluations_total",
			Help:      "Check-in window evaluations by resulting state",
		}, []string{"state"}),
		transitionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicops",
			Subsystem: "appointments",
			Name:      "transition_latency_seconds",
			Help:      "Latency of transition requests end to end",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.conflictsTotal, m.auditFailuresTotal, m.checkinTotal, m.transitionLatency)
	return m
}

func (m *AppointmentMetrics) ObserveTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to, outcome).Inc()
}

func (m *AppointmentMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *AppointmentMetrics) ObserveAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailuresTotal.Inc()
}

func (m *AppointmentMetrics) ObserveCheckin(state string) {
	if m == nil {
		return
	}
	m.checkinTotal.WithLabelValues(state).Inc()
}

func (m *AppointmentMetrics) ObserveTransitionLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.transitionLatency.WithLabelValues(outcome).Observe(seconds)
}
