package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordNoResult("correlation", "empty_overlap")
	r.RecordNoResult("correlation", "empty_overlap")
	r.RecordError("store")
	r.RecordLatestVolatility("NIFTY", "historical", 0.21)
	r.RecordComputation("regime", 0.002)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.noResult.WithLabelValues("correlation", "empty_overlap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("store")))
	assert.Equal(t, 0.21, testutil.ToFloat64(r.latestVol.WithLabelValues("NIFTY", "historical")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.computations))
}
