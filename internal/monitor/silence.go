package monitor

import (
	"sync"
	"time"

	"meetrec/internal/domain"
	"meetrec/internal/schedule"
)

// SilenceConfig tunes silence detection.
type SilenceConfig struct {
	ThresholdDB        float64
	FrequencyThreshold float64
	CheckInterval      time.Duration
	InitialTimeout     time.Duration
	Countdown          time.Duration
	// Hysteresis caps the silent tick counter; loud ticks decay it by one.
	Hysteresis int
}

func (c SilenceConfig) withDefaults() SilenceConfig {
	if c.ThresholdDB == 0 {
		c.ThresholdDB = -50
	}
	if c.FrequencyThreshold <= 0 {
		c.FrequencyThreshold = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 100 * time.Millisecond
	}
	if c.InitialTimeout <= 0 {
		c.InitialTimeout = 60 * time.Second
	}
	if c.Countdown <= 0 {
		c.Countdown = 60 * time.Second
	}
	if c.Hysteresis <= 0 {
		c.Hysteresis = 5
	}
	return c
}

// LevelSource reports the current audio levels.
type LevelSource interface {
	Levels() domain.AudioLevels
}

// Silence watches the combined stream for prolonged silence.
type Silence struct {
	cfg    SilenceConfig
	sched  schedule.Scheduler
	levels LevelSource
	hooks  Hooks

	mu           sync.Mutex
	started      bool
	stopped      bool
	fired        bool
	check        schedule.Handle
	countdown    schedule.Handle
	gen          int
	silentTicks  int
	silenceStart time.Time
	warning      bool
	remaining    int
}

func NewSilence(sched schedule.Scheduler, levels LevelSource, cfg SilenceConfig, hooks Hooks) *Silence {
	return &Silence{
		cfg:    cfg.withDefaults(),
		sched:  sched,
		levels: levels,
		hooks:  hooks,
	}
}

func (m *Silence) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.check = m.sched.Every(m.cfg.CheckInterval, func() {
		m.Observe(m.levels.Levels())
	})
}

// Observe classifies one sampling tick.
func (m *Silence) Observe(levels domain.AudioLevels) {
	var (
		notify []domain.Warning
		cancel schedule.Handle
	)

	m.mu.Lock()
	if m.stopped || m.fired {
		m.mu.Unlock()
		return
	}

	silent := levels.Decibels < m.cfg.ThresholdDB && levels.AverageFrequency < m.cfg.FrequencyThreshold
	now := m.sched.Now()
	switch {
	case silent:
		if m.silentTicks < m.cfg.Hysteresis {
			m.silentTicks++
		}
		if m.silenceStart.IsZero() {
			m.silenceStart = now
		} else if !m.warning && now.Sub(m.silenceStart) >= m.cfg.InitialTimeout {
			m.warning = true
			m.remaining = countdownSeconds(m.cfg.Countdown)
			m.gen++
			gen := m.gen
			m.countdown = m.sched.Every(time.Second, func() { m.countdownTick(gen) })
			notify = append(notify, m.warningLocked())
		}
	case m.silentTicks > 0:
		if m.warning {
			m.silentTicks = 0
		} else {
			m.silentTicks--
		}
		if m.silentTicks == 0 {
			var wasWarning bool
			cancel, wasWarning = m.resetLocked()
			if wasWarning {
				notify = append(notify, m.warningLocked())
			}
		}
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel.Cancel()
	}
	for _, w := range notify {
		m.hooks.warning(w)
	}
}

func (m *Silence) countdownTick(gen int) {
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
		m.hooks.autoStop(domain.StopReasonSilence)
	}
}

// KeepRecording dismisses the warning and restarts silence tracking.
func (m *Silence) KeepRecording() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	cancel, wasWarning := m.resetLocked()
	w := m.warningLocked()
	m.mu.Unlock()

	if cancel != nil {
		cancel.Cancel()
	}
	if wasWarning {
		m.hooks.warning(w)
	}
}

// Stop cancels every timer. No hook runs after Stop returns.
func (m *Silence) Stop() {
	m.mu.Lock()
	m.stopped = true
	check, countdown := m.check, m.countdown
	m.check, m.countdown = nil, nil
	m.mu.Unlock()

	if check != nil {
		check.Cancel()
	}
	if countdown != nil {
		countdown.Cancel()
	}
}

// Warning returns the current warning state.
func (m *Silence) Warning() domain.Warning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warningLocked()
}

func (m *Silence) warningLocked() domain.Warning {
	return domain.Warning{Kind: domain.WarningSilence, Active: m.warning, Countdown: m.remaining}
}

func (m *Silence) resetLocked() (schedule.Handle, bool) {
	countdown := m.countdown
	wasWarning := m.warning
	m.countdown = nil
	m.gen++
	m.warning = false
	m.remaining = 0
	m.silentTicks = 0
	m.silenceStart = time.Time{}
	m.fired = false
	return countdown, wasWarning
}
