package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// List outcome sources.
const (
	SourceStore   = "store"
	SourceCluster = "cluster"
	SourceEmpty   = "empty"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	UsersRegistered     prometheus.Counter
	TokensIssued        prometheus.Counter
	ListOutcomes        *prometheus.CounterVec
	RecordsBackfilled   prometheus.Counter
	DeploymentsCreated  prometheus.Counter
	DeploymentsDeleted  prometheus.Counter
	ClusterCallDuration *prometheus.HistogramVec
	AuthFailures        *prometheus.CounterVec
	OwnershipDenials    prometheus.Counter
}

// New creates all metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "deploygate_users_registered_total",
			Help: "Total number of users registered",
		}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "deploygate_tokens_issued_total",
			Help: "Total number of access tokens issued",
		}),
		ListOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deploygate_deployment_lists_total",
			Help: "Deployment list requests by where the answer came from",
		}, []string{"source"}),
		RecordsBackfilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "deploygate_records_backfilled_total",
			Help: "Deployment records written to the store from cluster state",
		}),
		DeploymentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "deploygate_deployments_created_total",
			Help: "Deployments created through the API",
		}),
		DeploymentsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "deploygate_deployments_deleted_total",
			Help: "Deployments deleted through the API",
		}),
		ClusterCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deploygate_cluster_call_duration_seconds",
			Help:    "Latency of calls to the Kubernetes API",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deploygate_auth_failures_total",
			Help: "Rejected credentials by reason",
		}, []string{"reason"}),
		OwnershipDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "deploygate_ownership_denials_total",
			Help: "Requests rejected because the caller does not own the path",
		}),
	}
}

func (m *Metrics) IncrementUsersRegistered() { m.UsersRegistered.Inc() }

func (m *Metrics) IncrementTokensIssued() { m.TokensIssued.Inc() }

func (m *Metrics) IncrementListOutcome(source string) { m.ListOutcomes.WithLabelValues(source).Inc() }

func (m *Metrics) AddRecordsBackfilled(n int) { m.RecordsBackfilled.Add(float64(n)) }

func (m *Metrics) IncrementDeploymentsCreated() { m.DeploymentsCreated.Inc() }

func (m *Metrics) IncrementDeploymentsDeleted() { m.DeploymentsDeleted.Inc() }

// ObserveClusterCall records how long a cluster operation took since start.
func (m *Metrics) ObserveClusterCall(operation string, start time.Time) {
	m.ClusterCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementAuthFailure(reason string) { m.AuthFailures.WithLabelValues(reason).Inc() }

func (m *Metrics) IncrementOwnershipDenied() { m.OwnershipDenials.Inc() }
