// Package metrics holds the prometheus collectors of the matchmaking server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Match outcomes.
const (
	OutcomeMatched     = "matched"
	OutcomeNoModerator = "no_moderator"
	OutcomeSuperseded  = "superseded"
	OutcomeRefused     = "refused"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modchat_connections_active",
		Help: "The current number of attached websocket connections.",
	})
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modchat_pool_size",
		Help: "Moderators currently idle and eligible for matching.",
	})
	ActivePairings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modchat_pairings_active",
		Help: "Rooms currently open between a user and a moderator.",
	})
	PendingSearches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modchat_searches_pending",
		Help: "Users waiting for their search timer to fire.",
	})

	MatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modchat_match_outcomes_total",
		Help: "Search timer firings by outcome.",
	}, []string{"outcome"})
	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modchat_messages_relayed_total",
		Help: "Chat events forwarded to a partner, by event type.",
	}, []string{"type"})
	ProtocolViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modchat_protocol_violations_total",
		Help: "Connections closed for violating the protocol, by reason.",
	}, []string{"reason"})
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modchat_invariant_violations_total",
		Help: "Refused operations that would have corrupted the pairing state.",
	})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modchat_frames_rate_limited_total",
		Help: "Inbound frames dropped by the per-connection rate limiter.",
	})
	GateDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modchat_gate_denials_total",
		Help: "Signals refused by the entitlement gate, by reason.",
	}, []string{"reason"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
