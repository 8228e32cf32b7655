// Package metrics exposes the Prometheus collectors shared across the
// server. Collectors are registered once at package load via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basta_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// OracleCallsTotal counts batch calls to the external answer judge
	OracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basta_oracle_calls_total",
			Help: "Total number of answer-judge batch calls",
		},
		[]string{"status"},
	)

	// OracleFallbacksTotal counts rounds validated by the local heuristic
	// because the judge was unavailable
	OracleFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basta_oracle_fallbacks_total",
			Help: "Total number of rounds scored with the fallback heuristic",
		},
	)

	// ActiveGames tracks game sessions currently in progress
	ActiveGames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "basta_active_games",
			Help: "Number of game sessions currently running",
		},
	)

	// ConnectedClients tracks open websocket connections
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "basta_connected_clients",
			Help: "Number of connected websocket clients",
		},
	)

	// QueuedPlayers tracks players waiting in the quickplay queue
	QueuedPlayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "basta_quickplay_queued_players",
			Help: "Number of players waiting in the quickplay queue",
		},
	)
)
