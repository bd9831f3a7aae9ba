// Package metrics holds Prometheus instruments used across the request
// pipeline.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PageViewsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_page_views_total",
			Help: "Cumulative number of page views persisted.",
		})

	AssetAccessesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_asset_accesses_total",
			Help: "Cumulative number of asset-access records touched.",
		})

	AuthzDenialsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_authz_denials_total",
			Help: "Cumulative number of authorization denials rendered.",
		})

	FeedProblemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_feed_problems_total",
			Help: "Cumulative number of feed resolution problems by kind.",
		}, []string{"kind"})

	ErrorReportsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_error_reports_total",
			Help: "Cumulative number of error reports built by the rescue handler.",
		})
)

func init() {
	prometheus.MustRegister(
		PageViewsTotal,
		AssetAccessesTotal,
		AuthzDenialsTotal,
		FeedProblemsTotal,
		ErrorReportsTotal,
	)
}
