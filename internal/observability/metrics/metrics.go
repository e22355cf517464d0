package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

// DialogueMetrics exposes counters/histograms for call handling.
type DialogueMetrics struct {
	turnsTotal    *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
	evictedTotal  prometheus.Counter
	webhooksTotal *prometheus.CounterVec
	bookingsTotal prometheus.Counter
}

var _ dialogue.TurnObserver = (*DialogueMetrics)(nil)

func NewDialogueMetrics(reg prometheus.Registerer) *DialogueMetrics {
	m := &DialogueMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total dialogue turns by phase and outcome",
		}, []string{"phase", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicvoice",
			Subsystem: "dialogue",
			Name:      "turn_latency_seconds",
			Help:      "Latency of a single dialogue turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		evictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Name:      "sessions_evicted_total",
			Help:      "Total idle call sessions evicted",
		}),
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "voice",
			Name:      "webhook_total",
			Help:      "Total Twilio voice webhooks by route and status",
		}, []string{"route", "status"}),
		bookingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "dialogue",
			Name:      "bookings_total",
			Help:      "Total appointments booked over the phone",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.evictedTotal, m.webhooksTotal, m.bookingsTotal)
	return m
}

// ObserveTurn implements dialogue.TurnObserver. Turns are labelled by the
// phase they started in.
func (m *DialogueMetrics) ObserveTurn(_ context.Context, rec dialogue.TurnRecord) {
	if m == nil {
		return
	}
	phase := string(rec.PhaseBefore)
	m.turnsTotal.WithLabelValues(phase, string(rec.Outcome)).Inc()
	m.turnLatency.WithLabelValues(phase).Observe(rec.Latency.Seconds())
	if rec.Outcome == dialogue.OutcomeBooked {
		m.bookingsTotal.Inc()
	}
}

func (m *DialogueMetrics) ObserveEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictedTotal.Add(float64(n))
}

func (m *DialogueMetrics) ObserveWebhook(route, status string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(route, status).Inc()
}
