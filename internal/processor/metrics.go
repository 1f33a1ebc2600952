package processor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline counters. Outcome counters are mutually
// exclusive per message except the escalation counters, which count ladder
// steps.
type Metrics struct {
	PatternMatched  prometheus.Counter
	AINeeded        prometheus.Counter
	EscalatedSonnet prometheus.Counter
	EscalatedOpus   prometheus.Counter
	Accepted        prometheus.Counter
	Flagged         prometheus.Counter
	Failed          prometheus.Counter

	MessageSeconds prometheus.Histogram
	BatchSeconds   prometheus.Histogram
}

// NewMetrics builds and registers the pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PatternMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_pattern_matched_total",
			Help: "Messages classified by pattern alone.",
		}),
		AINeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_ai_needed_total",
			Help: "Messages that required an LLM extraction.",
		}),
		EscalatedSonnet: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_escalated_sonnet_total",
			Help: "Extractions escalated to the mid tier.",
		}),
		EscalatedOpus: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_escalated_opus_total",
			Help: "Extractions escalated to the top tier.",
		}),
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_accepted_total",
			Help: "Chronicles accepted without review.",
		}),
		Flagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_flagged_total",
			Help: "Chronicles flagged for review.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightflow_failed_total",
			Help: "Messages that failed processing.",
		}),
		MessageSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "freightflow_message_seconds",
			Help:    "Per-message processing time.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		BatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "freightflow_batch_seconds",
			Help:    "Per-batch processing time.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
	reg.MustRegister(
		m.PatternMatched, m.AINeeded, m.EscalatedSonnet, m.EscalatedOpus,
		m.Accepted, m.Flagged, m.Failed, m.MessageSeconds, m.BatchSeconds,
	)
	return m
}
