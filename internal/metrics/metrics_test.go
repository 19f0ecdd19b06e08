package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetrec/internal/domain"
)

func TestSessionLifecycleCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordSessionStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	m.RecordAutoStop(domain.StopReasonSilence)
	m.RecordSessionStopped(61, 2048)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutoStops.WithLabelValues("silence")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SessionDuration))

	m.RecordStartFailure(domain.ErrorCodePermissionDenied)
	m.RecordSessionError(domain.ErrorCodeUploadFailed)
	m.RecordWarning(domain.WarningDuration)
	m.RecordFrameSent()
	m.RecordTranscriptEvent(domain.TranscriptKindFinal)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionStartFailures.WithLabelValues("permission_denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionErrors.WithLabelValues("upload_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Warnings.WithLabelValues("duration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AudioFramesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TranscriptEvents.WithLabelValues("final")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["meetrec_recorded_bytes"])
	assert.True(t, names["meetrec_sessions_started_total"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSessionStarted()
		m.RecordStartFailure(domain.ErrorCodeUnknown)
		m.RecordSessionStopped(1, 1)
		m.RecordSessionError(domain.ErrorCodeTeardown)
		m.RecordAutoStop(domain.StopReasonDuration)
		m.RecordWarning(domain.WarningSilence)
		m.RecordFrameSent()
		m.RecordTranscriptEvent(domain.TranscriptKindPartial)
	})
}
