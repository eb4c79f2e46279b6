package transport

// silentTransport is the transport used when no audio backend is available.
// Scheduling is accepted and discarded, so the core keeps working as an
// editor without producing sound.
type silentTransport struct {
	bpm     int
	running bool

	runningObservers []func(bool)
}

// Silent returns a transport that swallows everything it is given. Used
// when the real transport failed to come up, and in editor-only tooling.
func Silent() Transport {
	return &silentTransport{bpm: 120}
}

func (s *silentTransport) SubStepLengthMicros() int { return 60_000_000 / (s.bpm * 32) }
func (s *silentTransport) SubStepPlayhead() int64   { return 0 }
func (s *silentTransport) Multiplier() int          { return 32 }

func (s *silentTransport) ScheduleMidiBuffer(*MidiBuffer, int)       {}
func (s *silentTransport) ScheduleClipCommand(*ClipCommand, int)     {}
func (s *silentTransport) ScheduleTimerCommand(int64, *TimerCommand) {}

func (s *silentTransport) Start(bpm int) {
	if bpm > 0 {
		s.bpm = bpm
	}
	s.setRunning(true)
}

func (s *silentTransport) Stop() {
	s.setRunning(false)
}

func (s *silentTransport) setRunning(running bool) {
	if s.running == running {
		return
	}
	s.running = running
	for _, observer := range s.runningObservers {
		observer(running)
	}
}

func (s *silentTransport) TimerRunning() bool { return s.running }
func (s *silentTransport) BPM() int           { return s.bpm }

func (s *silentTransport) SecondsToSubSteps(bpm int, seconds float64) int64 {
	if bpm <= 0 {
		bpm = s.bpm
	}
	return int64(seconds * float64(bpm) * float64(s.Multiplier()) / 60.0)
}

func (s *silentTransport) OnAdvance(func(uint64, int)) func() { return func() {} }
func (s *silentTransport) OnTick(func(uint64)) func()         { return func() {} }

func (s *silentTransport) OnTimerCommand(func(*TimerCommand))   {}
func (s *silentTransport) OnClipCommandSent(func(*ClipCommand)) {}
func (s *silentTransport) OnTimerRunningChanged(observer func(bool)) {
	s.runningObservers = append(s.runningObservers, observer)
}
