// Package metrics exposes Prometheus counters for sessions, RPC calls and journal polling.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allegro",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login exchanges (status check + doLoginEnc) by outcome.",
		},
		[]string{"success"},
	)
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allegro",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Privileged WebAPI calls.",
		},
		[]string{"op", "success"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "allegro",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Privileged WebAPI call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	journalPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allegro",
			Subsystem: "journal",
			Name:      "polls_total",
			Help:      "Journal poll ticks by outcome.",
		},
		[]string{"success"},
	)
	journalEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allegro",
			Subsystem: "journal",
			Name:      "events_total",
			Help:      "Events emitted to subscribers.",
		},
		[]string{"kind"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(logins, rpcCalls, rpcDuration, journalPolls, journalEvents)
	})
}

// RecordLogin counts a finished status-check + login exchange.
func RecordLogin(success bool) {
	logins.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RecordCall counts a privileged call and observes its latency.
func RecordCall(op string, success bool, d time.Duration) {
	rpcCalls.WithLabelValues(op, strconv.FormatBool(success)).Inc()
	rpcDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordPoll counts one journal poll.
func RecordPoll(success bool) {
	journalPolls.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RecordEvent counts an emitted journal event by kind.
func RecordEvent(kind string) {
	journalEvents.WithLabelValues(kind).Inc()
}
