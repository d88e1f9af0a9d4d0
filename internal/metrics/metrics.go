package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasksync_operations_total",
		Help: "Reconciliation units of work, labelled by direction and outcome.",
	}, []string{"direction", "outcome"})

	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasksync_poll_cycles_total",
		Help: "Completed poll cycles, labelled by source and result.",
	}, []string{"source", "result"})

	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasksync_webhook_requests_total",
		Help: "Inbound webhook requests, labelled by disposition.",
	}, []string{"status"})
)
