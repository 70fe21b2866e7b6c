package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterTwice(t *testing.T) {
	assert.NotPanics(t, Register)
	assert.NotPanics(t, Register)

	SubmissionsTotal.WithLabelValues("admitted").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(SubmissionsTotal.WithLabelValues("admitted")), 1.0)

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "cleanapp_reportmap_submissions_total")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
