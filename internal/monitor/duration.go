package monitor

import (
	"sync"
	"time"

	"meetrec/internal/domain"
	"meetrec/internal/schedule"
)

// DurationConfig tunes the recording length watchdog.
type DurationConfig struct {
	WarningAfter time.Duration
	Countdown    time.Duration
}

func (c DurationConfig) withDefaults() DurationConfig {
	if c.WarningAfter <= 0 {
		c.WarningAfter = 75 * time.Minute
	}
	if c.Countdown <= 0 {
		c.Countdown = 60 * time.Second
	}
	return c
}

// Duration publishes elapsed time and warns when a recording runs long.
type Duration struct {
	cfg   DurationConfig
	sched schedule.Scheduler
	hooks Hooks

	mu        sync.Mutex
	started   bool
	stopped   bool
	fired     bool
	startedAt time.Time
	gen       int
	warnTimer schedule.Handle
	countdown schedule.Handle
	elapsed   schedule.Handle
	warning   bool
	remaining int
}

func NewDuration(sched schedule.Scheduler, cfg DurationConfig, hooks Hooks) *Duration {
	return &Duration{cfg: cfg.withDefaults(), sched: sched, hooks: hooks}
}

func (m *Duration) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.startedAt = m.sched.Now()
	m.armLocked()
	m.elapsed = m.sched.Every(time.Second, m.elapsedTick)
}

func (m *Duration) armLocked() {
	m.gen++
	gen := m.gen
	m.warnTimer = m.sched.After(m.cfg.WarningAfter, func() { m.raise(gen) })
}

func (m *Duration) raise(gen int) {
	m.mu.Lock()
	if m.stopped || gen != m.gen || m.warning {
		m.mu.Unlock()
		return
	}
	m.warning = true
	m.remaining = countdownSeconds(m.cfg.Countdown)
	m.countdown = m.sched.Every(time.Second, func() { m.countdownTick(gen) })
	w := m.warningLocked()
	m.mu.Unlock()

	m.hooks.warning(w)
}

func (m *Duration) countdownTick(gen int) {
	m.mu.Lock()
	if m.stopped || m.fired || gen != m.gen || !m.warning {
		m.mu.Unlock()
		return
	}
	m.remaining--
	fire := m.remaining <= 0
	if fire {
		m.remaining = 0
		m.fired = true
	}
	w := m.warningLocked()
	m.mu.Unlock()

	m.hooks.warning(w)
	if fire {
		m.hooks.autoStop(domain.StopReasonDuration)
	}
}

func (m *Duration) elapsedTick() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	seconds := int(m.sched.Now().Sub(m.startedAt) / time.Second)
	m.mu.Unlock()

	m.hooks.elapsed(seconds)
}

// Continue dismisses the warning and re-arms the full threshold from now.
func (m *Duration) Continue() {
	m.mu.Lock()
	if m.stopped || !m.started {
		m.mu.Unlock()
		return
	}
	warnTimer, countdown := m.warnTimer, m.countdown
	wasWarning := m.warning
	m.countdown = nil
	m.warning = false
	m.remaining = 0
	m.fired = false
	m.armLocked()
	w := m.warningLocked()
	m.mu.Unlock()

	if warnTimer != nil {
		warnTimer.Cancel()
	}
	if countdown != nil {
		countdown.Cancel()
	}
	if wasWarning {
		m.hooks.warning(w)
	}
}

// Stop cancels every timer. No hook runs after Stop returns.
func (m *Duration) Stop() {
	m.mu.Lock()
	m.stopped = true
	handles := []schedule.Handle{m.warnTimer, m.countdown, m.elapsed}
	m.warnTimer, m.countdown, m.elapsed = nil, nil, nil
	m.mu.Unlock()

	for _, h := range handles {
		if h != nil {
			h.Cancel()
		}
	}
}

// Elapsed returns whole seconds since Start.
func (m *Duration) Elapsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return 0
	}
	return int(m.sched.Now().Sub(m.startedAt) / time.Second)
}

// Warning returns the current warning state.
func (m *Duration) Warning() domain.Warning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warningLocked()
}

func (m *Duration) warningLocked() domain.Warning {
	return domain.Warning{Kind: domain.WarningDuration, Active: m.warning, Countdown: m.remaining}
}
