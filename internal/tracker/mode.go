package tracker

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/liamashdown/whaletracker/internal/metrics"
)

// Mode is where query data comes from
type Mode string

const (
	// ModeLive serves upstream data
	ModeLive Mode = "live"
	// ModeDegraded serves mock data after an upstream failure
	ModeDegraded Mode = "degraded"
	// ModeForcedMock never calls upstream (no API key or forced by config)
	ModeForcedMock Mode = "forced_mock"
)

func (m Mode) gaugeValue() float64 {
	switch m {
	case ModeDegraded:
		return 1
	case ModeForcedMock:
		return 2
	}
	return 0
}

// ModeController latches into degraded mode on the first upstream failure.
// With probing enabled, one request at a time is let through on an exponential
// schedule while degraded and a success returns to live.
type ModeController struct {
	mu sync.Mutex

	mode      Mode
	since     time.Time
	lastError string

	probe     *backoff.ExponentialBackOff
	nextProbe time.Time
	probing   bool

	now func() time.Time
	log *logrus.Logger
}

// NewModeController starts in forced mock when forced is set, otherwise live
func NewModeController(forced, probe bool, log *logrus.Logger) *ModeController {
	m := &ModeController{
		mode: ModeLive,
		now:  time.Now,
		log:  log,
	}
	if forced {
		m.mode = ModeForcedMock
	}
	if probe && !forced {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 30 * time.Second
		b.MaxInterval = 10 * time.Minute
		b.MaxElapsedTime = 0
		b.Reset()
		m.probe = b
	}
	m.since = m.now()
	metrics.RecordModeTransition(string(m.mode), m.mode.gaugeValue())
	return m
}

// Mode returns the current mode
func (m *ModeController) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// AllowUpstream reports whether the next query may call upstream.
// A true result while degraded claims the single probe slot, which the caller
// releases through ReportSuccess or ReportFailure.
func (m *ModeController) AllowUpstream() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode {
	case ModeLive:
		return true
	case ModeDegraded:
		if m.probe == nil || m.probing || m.now().Before(m.nextProbe) {
			return false
		}
		m.probing = true
		m.log.WithField("mode", m.mode).Info("Probing upstream for recovery")
		return true
	}
	return false
}

// ReportSuccess records a successful upstream call
func (m *ModeController) ReportSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode != ModeDegraded || !m.probing {
		return
	}
	m.probing = false
	m.probe.Reset()
	m.transition(ModeLive, "")
}

// Release gives back a probe slot claimed by AllowUpstream without a verdict,
// for calls abandoned by their caller rather than failed by upstream
func (m *ModeController) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probing = false
}

// ReportFailure records a failed upstream call
func (m *ModeController) ReportFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode {
	case ModeLive:
		m.transition(ModeDegraded, err.Error())
		if m.probe != nil {
			m.nextProbe = m.now().Add(m.probe.NextBackOff())
		}
	case ModeDegraded:
		m.lastError = err.Error()
		if m.probing {
			m.probing = false
			m.nextProbe = m.now().Add(m.probe.NextBackOff())
			m.log.WithFields(logrus.Fields{
				"next_probe": m.nextProbe,
				"error":      err,
			}).Warn("Upstream recovery probe failed")
		}
	}
}

// Status is a snapshot for introspection
type Status struct {
	Mode          Mode      `json:"mode"`
	Since         time.Time `json:"since"`
	LastError     string    `json:"lastError,omitempty"`
	RecoveryProbe bool      `json:"recoveryProbe"`
	NextProbe     time.Time `json:"nextProbe,omitempty"`
}

// Status returns the current mode details
func (m *ModeController) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Mode:          m.mode,
		Since:         m.since.UTC(),
		LastError:     m.lastError,
		RecoveryProbe: m.probe != nil,
	}
	if m.mode == ModeDegraded && m.probe != nil {
		s.NextProbe = m.nextProbe.UTC()
	}
	return s
}

// transition must be called with mu held
func (m *ModeController) transition(to Mode, reason string) {
	from := m.mode
	m.mode = to
	m.since = m.now()
	m.lastError = reason

	metrics.RecordModeTransition(string(to), to.gaugeValue())

	entry := m.log.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	})
	if to == ModeLive {
		entry.Info("Upstream recovered, serving live data")
		return
	}
	entry.WithField("reason", reason).Warn("Upstream failed, serving mock data")
}
