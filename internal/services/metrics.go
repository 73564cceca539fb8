package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recommendationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoprec_recommendation_requests_total",
		Help: "Recommendation requests by kind and outcome",
	}, []string{"kind", "outcome"})

	recommendationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shoprec_recommendation_duration_seconds",
		Help:    "Recommendation latency by kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	strategyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shoprec_strategy_duration_seconds",
		Help:    "Per-strategy scoring latency",
		Buckets: []float64{.005, .01, .025, .05, .1, .2, .3, .5, 1},
	}, []string{"strategy"})

	strategyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoprec_strategy_failures_total",
		Help: "Strategy calls that failed or timed out",
	}, []string{"strategy"})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoprec_trending_fallbacks_total",
		Help: "Personalized requests answered with trending only",
	}, []string{"cause"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoprec_cache_lookups_total",
		Help: "Recommendation cache lookups by strategy and result",
	}, []string{"strategy", "result"})

	trackedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoprec_tracked_events_total",
		Help: "Behaviour events by action and outcome",
	}, []string{"action", "outcome"})

	catalogBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shoprec_catalog_breaker_state",
		Help: "Catalog circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

var (
	healthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shoprec_health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	dbPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shoprec_postgres_pool_connections",
		Help: "PostgreSQL pool connections by state",
	}, []string{"state"})
)
