package transport

import "sync"

// ScheduledBuffer is a MIDI buffer captured by the manual transport.
type ScheduledBuffer struct {
	Buffer *MidiBuffer
	Offset int
}

// ScheduledClip is a clip command captured by the manual transport.
type ScheduledClip struct {
	Command *ClipCommand
	Offset  int
}

// ScheduledTimer is a timer command captured by the manual transport.
type ScheduledTimer struct {
	Command *TimerCommand
	Offset  int64
}

type pendingTimer struct {
	command *TimerCommand
	due     int64
}

// Manual is a transport whose clock is driven by hand: each Tick advances
// the playhead one sub-step and fires the registered tick callbacks (advance
// callbacks fire only from Advance). Everything
// scheduled is also captured for inspection, which makes Manual the
// transport of choice for tests and headless tooling.
type Manual struct {
	mu         sync.Mutex
	bpm        int
	multiplier int
	running    bool
	playhead   int64

	Buffers []ScheduledBuffer
	Clips   []ScheduledClip
	Timers  []ScheduledTimer

	pending []pendingTimer

	advanceCallbacks map[int]func(uint64, int)
	tickCallbacks    map[int]func(uint64)
	nextCallbackID   int

	timerObservers   []func(*TimerCommand)
	clipObservers    []func(*ClipCommand)
	runningObservers []func(bool)
}

// NewManual creates a manual transport at 120 BPM with 32 sub-steps per
// beat.
func NewManual() *Manual {
	return &Manual{
		bpm:              120,
		multiplier:       32,
		advanceCallbacks: make(map[int]func(uint64, int)),
		tickCallbacks:    make(map[int]func(uint64)),
	}
}

func (m *Manual) SubStepLengthMicros() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 60_000_000 / (m.bpm * m.multiplier)
}

func (m *Manual) SubStepPlayhead() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playhead
}

func (m *Manual) Multiplier() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.multiplier
}

func (m *Manual) ScheduleMidiBuffer(buffer *MidiBuffer, offset int) {
	m.mu.Lock()
	m.Buffers = append(m.Buffers, ScheduledBuffer{Buffer: buffer, Offset: offset})
	m.mu.Unlock()
}

func (m *Manual) ScheduleClipCommand(command *ClipCommand, offset int) {
	m.mu.Lock()
	m.Clips = append(m.Clips, ScheduledClip{Command: command, Offset: offset})
	observers := append(([]func(*ClipCommand))(nil), m.clipObservers...)
	m.mu.Unlock()
	for _, observer := range observers {
		observer(command)
	}
}

func (m *Manual) ScheduleTimerCommand(offset int64, command *TimerCommand) {
	m.mu.Lock()
	m.Timers = append(m.Timers, ScheduledTimer{Command: command, Offset: offset})
	if offset > 0 {
		m.pending = append(m.pending, pendingTimer{command: command, due: m.playhead + offset})
		m.mu.Unlock()
		return
	}
	observers := append(([]func(*TimerCommand))(nil), m.timerObservers...)
	m.mu.Unlock()
	for _, observer := range observers {
		observer(command)
	}
}

func (m *Manual) Start(bpm int) {
	m.mu.Lock()
	if bpm > 0 {
		m.bpm = bpm
	}
	changed := !m.running
	m.running = true
	observers := append(([]func(bool))(nil), m.runningObservers...)
	m.mu.Unlock()
	if changed {
		for _, observer := range observers {
			observer(true)
		}
	}
}

func (m *Manual) Stop() {
	m.mu.Lock()
	changed := m.running
	m.running = false
	m.playhead = 0
	m.pending = nil
	observers := append(([]func(bool))(nil), m.runningObservers...)
	m.mu.Unlock()
	if changed {
		for _, observer := range observers {
			observer(false)
		}
	}
}

func (m *Manual) TimerRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manual) BPM() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bpm
}

func (m *Manual) SecondsToSubSteps(bpm int, seconds float64) int64 {
	if bpm <= 0 {
		bpm = m.BPM()
	}
	return int64(seconds * float64(bpm) * float64(m.Multiplier()) / 60.0)
}

func (m *Manual) OnAdvance(callback func(uint64, int)) func() {
	m.mu.Lock()
	id := m.nextCallbackID
	m.nextCallbackID++
	m.advanceCallbacks[id] = callback
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.advanceCallbacks, id)
		m.mu.Unlock()
	}
}

func (m *Manual) OnTick(callback func(uint64)) func() {
	m.mu.Lock()
	id := m.nextCallbackID
	m.nextCallbackID++
	m.tickCallbacks[id] = callback
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.tickCallbacks, id)
		m.mu.Unlock()
	}
}

func (m *Manual) OnTimerCommand(observer func(*TimerCommand)) {
	m.mu.Lock()
	m.timerObservers = append(m.timerObservers, observer)
	m.mu.Unlock()
}

func (m *Manual) OnClipCommandSent(observer func(*ClipCommand)) {
	m.mu.Lock()
	m.clipObservers = append(m.clipObservers, observer)
	m.mu.Unlock()
}

func (m *Manual) OnTimerRunningChanged(observer func(bool)) {
	m.mu.Lock()
	m.runningObservers = append(m.runningObservers, observer)
	m.mu.Unlock()
}

// Advance fires the advancement callbacks for a window of the given length
// starting at the current playhead.
func (m *Manual) Advance(progressionLength int) {
	m.mu.Lock()
	position := uint64(m.playhead)
	callbacks := make([]func(uint64, int), 0, len(m.advanceCallbacks))
	for _, callback := range m.advanceCallbacks {
		callbacks = append(callbacks, callback)
	}
	m.mu.Unlock()
	for _, callback := range callbacks {
		callback(position, progressionLength)
	}
}

// Tick advances the playhead one sub-step: tick callbacks fire, then any
// timer commands that have come due dispatch.
func (m *Manual) Tick() {
	m.mu.Lock()
	m.playhead++
	position := uint64(m.playhead)
	ticks := make([]func(uint64), 0, len(m.tickCallbacks))
	for _, callback := range m.tickCallbacks {
		ticks = append(ticks, callback)
	}
	var due []*TimerCommand
	remaining := m.pending[:0]
	for _, pending := range m.pending {
		if pending.due <= m.playhead {
			due = append(due, pending.command)
		} else {
			remaining = append(remaining, pending)
		}
	}
	m.pending = remaining
	timerObservers := append(([]func(*TimerCommand))(nil), m.timerObservers...)
	m.mu.Unlock()
	for _, callback := range ticks {
		callback(position)
	}
	for _, command := range due {
		for _, observer := range timerObservers {
			observer(command)
		}
	}
}

// ScheduledBuffers returns the captured MIDI buffers.
func (m *Manual) ScheduledBuffers() []ScheduledBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduledBuffer(nil), m.Buffers...)
}

// ScheduledClips returns the captured clip commands.
func (m *Manual) ScheduledClips() []ScheduledClip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduledClip(nil), m.Clips...)
}

// ScheduledTimers returns the captured timer commands.
func (m *Manual) ScheduledTimers() []ScheduledTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduledTimer(nil), m.Timers...)
}

// Reset clears the captured schedules.
func (m *Manual) Reset() {
	m.mu.Lock()
	m.Buffers = nil
	m.Clips = nil
	m.Timers = nil
	m.mu.Unlock()
}
