// Package metrics holds the Prometheus collectors shared by the clients and
// the song worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songgen_provider_requests_total",
		Help: "Total number of HTTP calls made to upstream providers",
	}, []string{"provider", "code"})

	PollAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songgen_poll_attempts_total",
		Help: "Total number of status checks made while waiting on a job",
	}, []string{"provider"})

	PollExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songgen_poll_exhausted_total",
		Help: "Total number of waits that ran out of attempts",
	}, []string{"provider"})

	DownloadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "songgen_downloaded_bytes_total",
		Help: "Total number of audio bytes downloaded",
	})

	SongRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "songgen_song_requests_total",
		Help: "Total number of song requests handled by the worker",
	}, []string{"outcome"})

	SongRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "songgen_song_request_duration_seconds",
		Help:    "Time taken to turn a song request into a downloaded clip",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})
)
