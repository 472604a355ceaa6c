package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreSelectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_selections_total",
		Help: "Total number of store selections written to shopper context",
	})

	StoreDeselectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_deselections_total",
		Help: "Total number of store deselections",
	})

	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Total number of slots soft-reserved",
	})

	ReservationsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_cancelled_total",
		Help: "Total number of reservations confirmed cancelled",
	})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_failed_total",
		Help: "Total number of failed reservation operations",
	}, []string{"reason"})

	TokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "token_refreshes_total",
		Help: "Total number of OAuth token refreshes per upstream",
	}, []string{"upstream"})

	StoreFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_fetches_total",
		Help: "Total number of store directory fetches",
	}, []string{"kind"})

	SlotSearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slot_search_latency_seconds",
		Help:    "Latency of timeslot availability searches",
		Buckets: prometheus.DefBuckets,
	})

	StoreSearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_search_latency_seconds",
		Help:    "Latency of fuzzy plus geocoded store searches",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
