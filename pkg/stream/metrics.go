package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts terminal operations by op, mode and result (ok, error).
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagedseq_stream_operations_total",
			Help: "Total number of stream terminal operations by op, mode and result",
		},
		[]string{"op", "mode", "result"},
	)

	// OperationDuration tracks terminal operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagedseq_stream_operation_duration_seconds",
			Help:    "Stream terminal operation duration in seconds by op and mode",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"op", "mode"},
	)
)
