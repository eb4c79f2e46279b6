// Package transport declares the contracts the playgrid core consumes from
// the outside world: the SyncTimer-style transport that owns musical time,
// the MIDI router, and the sampler clip backend. The core drives these; it
// does not implement them.
package transport

// Transport is the external timer/scheduler the core submits work to. All
// musical time is expressed in sub-steps; a beat contains Multiplier()
// sub-steps, and one sub-step lasts SubStepLengthMicros() microseconds at
// the current tempo.
type Transport interface {
	// SubStepLengthMicros returns the length of one sub-step in microseconds.
	SubStepLengthMicros() int
	// SubStepPlayhead returns the transport's current position in sub-steps.
	SubStepPlayhead() int64
	// Multiplier returns the number of sub-steps per beat.
	Multiplier() int

	// ScheduleMidiBuffer queues a prebuilt buffer for emission offset
	// sub-steps from now. Offsets below zero are clamped by the caller.
	ScheduleMidiBuffer(buffer *MidiBuffer, offset int)
	// ScheduleClipCommand queues a sampler instruction.
	ScheduleClipCommand(command *ClipCommand, offset int)
	// ScheduleTimerCommand queues a transport-level instruction.
	ScheduleTimerCommand(offset int64, command *TimerCommand)

	Start(bpm int)
	Stop()
	TimerRunning() bool
	BPM() int

	// SecondsToSubSteps converts a duration in seconds to sub-steps at the
	// given tempo.
	SecondsToSubSteps(bpm int, seconds float64) int64

	// OnAdvance registers a callback invoked just before each window of
	// progressionLength sub-steps begins, so consumers can pre-schedule.
	// The returned function disconnects the callback.
	OnAdvance(func(sequencePosition uint64, progressionLength int)) (cancel func())
	// OnTick registers a per-sub-step callback. The returned function
	// disconnects it.
	OnTick(func(sequencePosition uint64)) (cancel func())

	// OnTimerCommand registers an observer called when a scheduled timer
	// command fires. Called on the transport's tick goroutine.
	OnTimerCommand(func(*TimerCommand))
	// OnClipCommandSent registers an observer called when a clip command has
	// been handed to the sampler. Called on the transport's tick goroutine.
	OnClipCommandSent(func(*ClipCommand))
	// OnTimerRunningChanged registers an observer for transport start/stop.
	OnTimerRunningChanged(func(running bool))
}

// RouterDestination selects where a channel's MIDI events are routed.
type RouterDestination int

const (
	ZynthianDestination RouterDestination = iota
	SamplerDestination
	ExternalDestination
)

// Router is the external MIDI routing graph.
type Router interface {
	// SetChannelDestination routes a channel. overrideChannel rewrites the
	// outgoing channel when non-negative; -1 leaves events untouched.
	SetChannelDestination(channel int, destination RouterDestination, overrideChannel int)
	// SetZynthianChannels sets the synth engine channels fed by a channel.
	SetZynthianChannels(channel int, zynthianChannels []int)
}

// Clip is a sampler clip as exposed by the external clip backend.
type Clip interface {
	ID() int
	KeyZoneStart() int
	KeyZoneEnd() int
	// SliceForMidiNote maps a note within the key zone to a slice index.
	SliceForMidiNote(midiNote int) int
	Slices() int
	SliceBaseMidiNote() int
	VolumeAbsolute() float64
	RootNote() int
}

// ClipResolver looks up clips by their backend id.
type ClipResolver interface {
	// ByID returns the clip with the given id, or nil if it does not exist.
	ByID(id int) Clip
}
