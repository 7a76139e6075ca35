package observ

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterLabelsCanonicalized(t *testing.T) {
	IncCounter("canon_events_total", map[string]string{"b": "2", "a": "1"})
	IncCounter("canon_events_total", map[string]string{"a": "1", "b": "2"})
	require.EqualValues(t, 2, CounterValue("canon_events_total", map[string]string{"b": "2", "a": "1"}))
}

func TestGaugeHoldsLatestValue(t *testing.T) {
	SetGauge("queue_depth", 7, nil)
	SetGauge("queue_depth", 3, nil)
	require.Equal(t, 3.0, GaugeValue("queue_depth", nil))
	require.Equal(t, 0.0, GaugeValue("never_set", nil))
}

func TestSnapshotIsACopy(t *testing.T) {
	IncCounter("snap_events_total", nil)
	snap := Snapshot()
	require.EqualValues(t, 1, snap["snap_events_total"][""])

	snap["snap_events_total"][""] = 99
	require.EqualValues(t, 1, CounterValue("snap_events_total", nil))
}
