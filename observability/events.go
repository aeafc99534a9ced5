package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks committed notifications from emission through
// delivery to live subscribers.
type NotificationMetrics struct {
	emitted     *prometheus.CounterVec
	dropped     prometheus.Counter
	delivered   *prometheus.CounterVec
	subscribers prometheus.Gauge
}

var (
	notificationOnce     sync.Once
	notificationRegistry *NotificationMetrics
)

// Notifications returns the shared notification metrics.
func Notifications() *NotificationMetrics {
	notificationOnce.Do(func() {
		notificationRegistry = &NotificationMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed notifications by event family and type.",
			}, []string{"family", "type"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Journal entries not handed to a lagging subscriber.",
			}),
			delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fund",
				Subsystem: "events",
				Name:      "delivered_total",
				Help:      "Journal entries written to clients by transport.",
			}, []string{"transport"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "fund",
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Live journal subscriptions.",
			}),
		}
		prometheus.MustRegister(
			notificationRegistry.emitted,
			notificationRegistry.dropped,
			notificationRegistry.delivered,
			notificationRegistry.subscribers,
		)
	})
	return notificationRegistry
}

// RecordEmitted counts one notification. The family is the segment after the
// module prefix, e.g. "campaign" for crowdfund.campaign.created.
func (m *NotificationMetrics) RecordEmitted(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	family := "other"
	if parts := strings.Split(normalized, "."); len(parts) >= 3 {
		family = parts[1]
	}
	m.emitted.WithLabelValues(family, normalized).Inc()
}

// RecordDropped counts an entry skipped for a full subscriber buffer.
func (m *NotificationMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// RecordDelivered counts an entry written to a client.
func (m *NotificationMetrics) RecordDelivered(transport string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(transport).Inc()
}

// SubscriberAdded and SubscriberRemoved keep the live subscription gauge.
func (m *NotificationMetrics) SubscriberAdded() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *NotificationMetrics) SubscriberRemoved() {
	if m != nil {
		m.subscribers.Dec()
	}
}
