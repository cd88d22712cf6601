// Package metrics defines and registers all custom Prometheus metrics for the
// therapy platform API. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry at package load via
// promauto; the /metrics route is mounted by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "therapy"

// ── Session metrics ───────────────────────────────────────────────────────────

// RegistrationsTotal counts successfully created accounts.
var RegistrationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of accounts created.",
	},
)

// LoginsTotal counts successful logins.
var LoginsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of successful logins.",
	},
)

// RefreshTotal counts refresh attempts by outcome.
// Label:
//   - outcome: "rotated" (success), "rejected" (bad/stale token), "error" (infrastructure)
var RefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_total",
		Help:      "Total number of refresh token attempts, by outcome.",
	},
	[]string{"outcome"},
)

// RefreshCoalescedTotal counts refresh callers that were parked behind an
// in-flight rotation instead of performing their own.
var RefreshCoalescedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_coalesced_total",
		Help:      "Total number of refresh attempts coalesced into an in-flight rotation.",
	},
)

// ── OTP metrics ───────────────────────────────────────────────────────────────

// OTPIssuedTotal counts one-time codes issued.
// Label:
//   - purpose: "verification" or "password_reset"
var OTPIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "otp_issued_total",
		Help:      "Total number of one-time codes issued, by purpose.",
	},
	[]string{"purpose"},
)

// SweepRunsTotal counts scheduled OTP sweep executions.
// Label:
//   - result: "ok" or "error"
var SweepRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "otp_sweep_runs_total",
		Help:      "Total number of expired-OTP sweep runs, by result.",
	},
	[]string{"result"},
)

// SweepClearedTotal counts verification codes cleared by the sweeper.
var SweepClearedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "otp_sweep_cleared_total",
		Help:      "Total number of expired verification codes cleared by the sweeper.",
	},
)

// ── Mail metrics ──────────────────────────────────────────────────────────────

// EmailsSentTotal counts notification delivery attempts.
// Labels:
//   - kind: "verification", "welcome", or "password_reset"
//   - outcome: "ok", "error", or "dropped" (queue full)
var EmailsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_sent_total",
		Help:      "Total number of notification emails attempted, by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// MailQueueDepth tracks pending notifications in each mailer worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var MailQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mail_queue_depth",
		Help:      "Current number of notifications pending in each mailer worker channel.",
	},
	[]string{"worker_id"},
)
