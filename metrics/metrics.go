// Package metrics wires the broker's runtime counters into Prometheus
// collectors. GetStats (wire.GetStats) reads these counters directly rather
// than scraping HTTP, so the same numbers back both the wire reply and any
// external Prometheus scrape the operator points at the broker.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the broker-wide counter set; one instance is shared by every
// shard (Prometheus counters are safe for concurrent use from multiple
// goroutines, so this is the one piece of state every shard touches without
// going through the router).
type Metrics struct {
	Registry *prometheus.Registry

	CommandsProcessed *prometheus.CounterVec
	MessagesSent      prometheus.Counter
	MessagesPolled    prometheus.Counter
	AppendLatency     prometheus.Histogram
	ShardInboxDepth   *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmq",
			Name:      "commands_processed_total",
			Help:      "Number of commands dispatched by the shard executor, by opcode and result.",
		}, []string{"opcode", "result"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmq",
			Name:      "messages_sent_total",
			Help:      "Number of messages successfully appended.",
		}),
		MessagesPolled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmq",
			Name:      "messages_polled_total",
			Help:      "Number of messages returned to pollers.",
		}),
		AppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowmq",
			Name:      "append_latency_seconds",
			Help:      "Latency of append_messages batches, index-mutation to storage-ack.",
			Buckets:   prometheus.DefBuckets,
		}),
		ShardInboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flowmq",
			Name:      "shard_inbox_depth",
			Help:      "Current number of queued frames in a shard's inbox channel.",
		}, []string{"shard"}),
	}
	reg.MustRegister(m.CommandsProcessed, m.MessagesSent, m.MessagesPolled, m.AppendLatency, m.ShardInboxDepth)
	return m
}
