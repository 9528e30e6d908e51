package auth

import "github.com/prometheus/client_golang/prometheus"

var (
	authSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intercomd_auth_password_grant_success_total",
			Help: "Successful password-grant authentications",
		},
		[]string{"provider"},
	)
	authFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intercomd_auth_password_grant_failure_total",
			Help: "Failed password-grant authentications",
		},
		[]string{"provider"},
	)
	refreshSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intercomd_auth_refresh_success_total",
			Help: "Successful token refreshes",
		},
		[]string{"provider"},
	)
	refreshFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intercomd_auth_refresh_failure_total",
			Help: "Failed token refreshes (each falls back to re-auth)",
		},
		[]string{"provider"},
	)
	tokenValid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intercomd_auth_token_valid",
			Help: "Access token validity (1=valid, 0=invalid)",
		},
		[]string{"provider"},
	)
	remotePersistOK = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intercomd_auth_remote_persist_ok",
			Help: "Remote blob persistence health (1=ok, 0=error)",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors returns collectors for the shared auth module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		authSuccess,
		authFailure,
		refreshSuccess,
		refreshFailure,
		tokenValid,
		remotePersistOK,
	}
}
