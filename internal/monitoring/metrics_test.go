package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackRollback(t *testing.T) {
	before := testutil.ToFloat64(rollbacks.WithLabelValues("EXPIRED", "ok"))

	TrackRollback("EXPIRED", "ok")
	TrackRollback("EXPIRED", "ok")

	assert.Equal(t, before+2, testutil.ToFloat64(rollbacks.WithLabelValues("EXPIRED", "ok")))
}

func TestTrackSweepItem(t *testing.T) {
	before := testutil.ToFloat64(sweepItems.WithLabelValues("reminder", "failed"))

	TrackSweepItem("reminder", "failed")

	assert.Equal(t, before+1, testutil.ToFloat64(sweepItems.WithLabelValues("reminder", "failed")))
}
