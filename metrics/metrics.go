// Package metrics holds the service counters. They are registered with the
// default Prometheus registry and served on /metrics.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Signups = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "qrmenu_signups_total",
		Help: "Count of owner signups",
	}, []string{"outcome"})

	SignupDecisions = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "qrmenu_signup_decisions_total",
		Help: "Count of processed signup reviews",
	}, []string{"decision", "outcome"})

	Logins = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "qrmenu_logins_total",
		Help: "Count of login attempts",
	}, []string{"outcome"})

	PasswordReset = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "qrmenu_password_reset_total",
		Help: "Count of password reset steps",
	}, []string{"stage", "outcome"})

	RateLimited = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "qrmenu_rate_limited_total",
		Help: "Count of requests rejected by a rate limiter",
	}, []string{"limiter"})

	NotificationFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "qrmenu_notification_failures_total",
		Help: "Count of emails that could not be delivered",
	}, []string{"kind"})
)

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
