// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voiceagent"

var (
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "active",
		Help:      "Call sessions currently registered",
	})

	SessionTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "turns_total",
		Help:      "Listen cycles by result",
	}, []string{"result"}) // result: reply, discarded, stt_error, llm_error, tts_error

	SessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "ended_total",
		Help:      "Ended sessions by cause",
	}, []string{"cause"}) // cause: hangup, channel_gone, watchdog, shutdown, listen_failed

	BookingDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduling",
		Name:      "booking_decisions_total",
		Help:      "Booking checker verdicts",
	}, []string{"result"})

	CallbacksTriggered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduling",
		Name:      "callbacks_triggered_total",
		Help:      "Follow-up calls dialed by trigger path",
	}, []string{"source"}) // source: timer, sweep

	DialAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dialer",
		Name:      "attempts_total",
		Help:      "Outbound originations by lead outcome",
	}, []string{"result"})

	DialInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dialer",
		Name:      "in_flight",
		Help:      "Originations awaiting acknowledgement",
	})

	CollaboratorLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "collaborator",
		Name:      "latency_seconds",
		Help:      "Latency of speech and reasoning calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30, 45},
	}, []string{"op", "status"}) // op: stt, tts, llm_reply, llm_report, llm_learn, llm_followup
)

var registerOnce sync.Once

// Register adds every collector to reg once per process.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			ActiveSessions,
			SessionTurns,
			SessionsEnded,
			BookingDecisions,
			CallbacksTriggered,
			DialAttempts,
			DialInFlight,
			CollaboratorLatency,
		)
	})
}

// NewRegistry returns a private registry with process and Go runtime collectors
// plus the agent's own metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	Register(reg)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Status maps an error to the status label used on latency histograms.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
