package tracker

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var errUpstream = errors.New("upstream down")

func TestForcedMockNeverCallsUpstream(t *testing.T) {
	m := NewModeController(true, true, quietLogger())
	assert.Equal(t, ModeForcedMock, m.Mode())
	assert.False(t, m.AllowUpstream())

	m.ReportSuccess()
	assert.Equal(t, ModeForcedMock, m.Mode())
	assert.False(t, m.Status().RecoveryProbe)
}

func TestFailureLatchesWithoutProbe(t *testing.T) {
	m := NewModeController(false, false, quietLogger())
	require.True(t, m.AllowUpstream())

	m.ReportFailure(errUpstream)
	assert.Equal(t, ModeDegraded, m.Mode())
	assert.Equal(t, "upstream down", m.Status().LastError)

	// No amount of time or late successes brings it back
	now := time.Now()
	m.now = func() time.Time { return now.Add(24 * time.Hour) }
	assert.False(t, m.AllowUpstream())
	m.ReportSuccess()
	assert.Equal(t, ModeDegraded, m.Mode())
}

func TestRecoveryProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewModeController(false, true, quietLogger())
	m.now = func() time.Time { return now }

	m.ReportFailure(errUpstream)
	require.Equal(t, ModeDegraded, m.Mode())
	assert.False(t, m.AllowUpstream(), "probe waits for the backoff interval")

	now = now.Add(time.Hour)
	require.True(t, m.AllowUpstream())
	assert.False(t, m.AllowUpstream(), "only one probe in flight")

	// Failed probe reschedules
	m.ReportFailure(errUpstream)
	assert.Equal(t, ModeDegraded, m.Mode())
	assert.True(t, m.Status().NextProbe.After(now))
	assert.False(t, m.AllowUpstream())

	now = now.Add(time.Hour)
	require.True(t, m.AllowUpstream())
	m.ReportSuccess()
	assert.Equal(t, ModeLive, m.Mode())
	assert.True(t, m.AllowUpstream())
	assert.Empty(t, m.Status().LastError)
}

func TestConcurrentSuccessDoesNotClearLatch(t *testing.T) {
	m := NewModeController(false, true, quietLogger())

	require.True(t, m.AllowUpstream())
	require.True(t, m.AllowUpstream())

	m.ReportFailure(errUpstream)
	// A request admitted while live finishes after the failure
	m.ReportSuccess()
	assert.Equal(t, ModeDegraded, m.Mode())
}

func TestReleaseFreesProbeSlotWithoutVerdict(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewModeController(false, true, quietLogger())
	m.now = func() time.Time { return now }

	m.Release()
	assert.Equal(t, ModeLive, m.Mode(), "release in live mode is a no-op")

	m.ReportFailure(errUpstream)
	now = now.Add(time.Hour)
	require.True(t, m.AllowUpstream())
	next := m.Status().NextProbe

	m.Release()
	assert.Equal(t, ModeDegraded, m.Mode())
	assert.Equal(t, next, m.Status().NextProbe, "schedule untouched")
	assert.True(t, m.AllowUpstream(), "slot is free again")
}
