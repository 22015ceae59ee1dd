package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var invocationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "photoapi_invocation_outcomes",
	Help: "Terminal outcomes of API invocations and uploads",
}, []string{"kind", "outcome"})

var invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "photoapi_invocation_duration",
	Help:    "Time from start to terminal outcome of API invocations and uploads",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 60, 20),
}, []string{"kind", "outcome"})

var uploadBytes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "photoapi_upload_bytes",
	Help: "Bytes of upload bodies sent",
})
