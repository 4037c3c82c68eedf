package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementListOutcome(SourceStore)
	m.IncrementListOutcome(SourceCluster)
	m.IncrementListOutcome(SourceCluster)
	m.AddRecordsBackfilled(3)
	m.IncrementAuthFailure("invalid_token")
	m.IncrementOwnershipDenied()
	m.ObserveClusterCall("list", time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListOutcomes.WithLabelValues(SourceStore)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ListOutcomes.WithLabelValues(SourceCluster)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsBackfilled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailures.WithLabelValues("invalid_token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OwnershipDenials))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
