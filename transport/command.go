package transport

// TimerOperation identifies what a TimerCommand asks the transport to do.
type TimerOperation int

const (
	InvalidOperation TimerOperation = iota
	StartClipLoopOperation
	StopClipLoopOperation
	StartPartOperation
	StopPartOperation
	StopPlaybackOperation
)

// TimerCommand is an instruction scheduled against the transport's tick
// stream. The parameter fields are operation-specific:
//
//	StartClipLoop/StopClipLoop: Parameter = channel, Parameter2 = clip id,
//	Parameter3 = midi note to loop at.
//	StartPart/StopPart: Parameter = channel, Parameter2 = track (column),
//	Parameter3 = part, BigParameter = playback offset in sub-steps.
type TimerCommand struct {
	Operation    TimerOperation
	Parameter    int
	Parameter2   int
	Parameter3   int
	BigParameter uint64

	// ClipCommand carries the prepared sampler instruction for clip-loop
	// operations. The transport swallows it on dispatch, so it is rebuilt
	// before each scheduling.
	ClipCommand *ClipCommand
}

// Special clip-command channels selecting a playback lane rather than a
// concrete midi channel.
const (
	NoEffectLane = -1
	EffectedLane = -2
)

// ClipCommand is an instruction for the sampler backend.
type ClipCommand struct {
	Clip          Clip
	MidiChannel   int
	MidiNote      int
	StartPlayback bool
	StopPlayback  bool
	ChangeVolume  bool
	Volume        float64
	ChangeSlice   bool
	Slice         int
	Looping       bool
}

// ChannelCommand creates a clip command targeting a concrete midi channel.
func ChannelCommand(clip Clip, channel int) *ClipCommand {
	return &ClipCommand{Clip: clip, MidiChannel: channel}
}

// NoEffectCommand creates a clip command for the dry playback lane.
func NoEffectCommand(clip Clip) *ClipCommand {
	return &ClipCommand{Clip: clip, MidiChannel: NoEffectLane}
}

// EffectedCommand creates a clip command for the effected playback lane.
func EffectedCommand(clip Clip) *ClipCommand {
	return &ClipCommand{Clip: clip, MidiChannel: EffectedLane}
}
