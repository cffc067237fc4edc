package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordUpdate(t *testing.T) {
	before := testutil.ToFloat64(UpdatesTotal.WithLabelValues("primary_used"))
	RecordUpdate("primary_used", 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(UpdatesTotal.WithLabelValues("primary_used")))
}

func TestRecordState(t *testing.T) {
	RecordState(1.001, 1.0002, 1.05, 0.95, 0)
	assert.InDelta(t, 1.001, testutil.ToFloat64(LatestAnswer), 1e-9)
	assert.InDelta(t, 1.05, testutil.ToFloat64(EMABounds.WithLabelValues("upper")), 1e-9)
	assert.InDelta(t, 0.95, testutil.ToFloat64(EMABounds.WithLabelValues("lower")), 1e-9)
}

func TestRecordSourceHealth(t *testing.T) {
	RecordSourceHealth("accountant", "primary", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(SourceHealth.WithLabelValues("accountant", "primary")))
	RecordSourceHealth("accountant", "primary", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(SourceHealth.WithLabelValues("accountant", "primary")))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
