package observability

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	crowdfundOnce     sync.Once
	crowdfundRegistry *CrowdfundMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fund",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// CrowdfundMetrics tracks campaign operations and the value flowing through
// escrow.
type CrowdfundMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	flows      *prometheus.CounterVec
	journal    *prometheus.CounterVec
}

// Crowdfund returns the singleton crowdfund metrics registry.
func Crowdfund() *CrowdfundMetrics {
	crowdfundOnce.Do(func() {
		crowdfundRegistry = &CrowdfundMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "crowdfund",
				Name:      "operations_total",
				Help:      "Count of campaign operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fund",
				Subsystem: "crowdfund",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for campaign operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			flows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "crowdfund",
				Name:      "escrow_flow_total",
				Help:      "Value moved into or out of campaign escrow segmented by direction.",
			}, []string{"direction"}),
			journal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "journal",
				Name:      "writes_total",
				Help:      "Count of journal appends segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			crowdfundRegistry.operations,
			crowdfundRegistry.latency,
			crowdfundRegistry.flows,
			crowdfundRegistry.journal,
		)
	})
	return crowdfundRegistry
}

// RecordOperation records the outcome of a single operation. Failures are
// labelled with a short reason derived from the error text.
func (m *CrowdfundMetrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation, outcomeLabel(err)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFlow adds amount to the escrow flow counter for the direction, one of
// "donated", "refunded" or "claimed".
func (m *CrowdfundMetrics) RecordFlow(direction string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.flows.WithLabelValues(direction).Add(value)
}

// RecordJournalWrite increments the journal append counter.
func (m *CrowdfundMetrics) RecordJournalWrite(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.journal.WithLabelValues("error").Inc()
		return
	}
	m.journal.WithLabelValues("success").Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		msg = msg[idx+2:]
	}
	msg = strings.ToLower(strings.TrimSpace(msg))
	msg = strings.NewReplacer(" ", "_", "-", "_").Replace(msg)
	if len(msg) > 48 {
		msg = msg[:48]
	}
	if msg == "" {
		return "error"
	}
	return msg
}
