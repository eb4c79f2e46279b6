package pattern

import (
	"github.com/GeoffreyPlitt/debuggo"

	"github.com/zynthbox/playgrid/transport"
)

var playerDebug = debuggo.Debug("playgrid:player")

// IsPlaying reports whether the pattern should currently be making sounds:
// in song mode that is the playfield's decision for the pattern's slot, and
// otherwise it requires a playing sequence plus the pattern being soloed or
// enabled.
func (p *Pattern) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPlaying()
}

// Caller holds p.mu.
func (p *Pattern) isPlaying() bool {
	if p.song != nil && p.song.SongMode() {
		track := 0
		if p.sequence != nil {
			track = p.sequence.SceneIndex()
		}
		return p.song.PartActive(p.channelIndex, track, p.partIndex)
	}
	if p.sequence == nil {
		return false
	}
	if !p.sequence.IsPlaying() {
		return false
	}
	if solo := p.sequence.SoloPatternIndex(); solo > -1 {
		return solo == p.index
	}
	return p.enabled
}

// shouldSchedule gates buffer submission. Caller holds p.mu.
func (p *Pattern) shouldSchedule() bool {
	if p.transport == nil || p.muted || !p.isPlaying() {
		return false
	}
	// Sample destinations bypass the midi graph, so the channel rules do
	// not apply to them.
	if p.destination == SampleTriggerDestination || p.destination == SampleSlicedDestination {
		return true
	}
	if p.midiChannel > -1 && p.midiChannel < ControlChannel {
		return true
	}
	return p.currentMidiChannel() > -1
}

// HandleSequenceAdvancement prepares the next window of progressionLength
// sub-steps: for every relevant step position in the window it fetches (or
// compiles) the cell's buffers and submits them to the transport, offset so
// they fire on their step. Driven by the transport's tick goroutine just
// before the window begins.
func (p *Pattern) HandleSequenceAdvancement(sequencePosition uint64, progressionLength int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.shouldSchedule() {
		return
	}
	span := p.availableBars * p.width
	if span <= 0 {
		return
	}
	var playbackOffset uint64
	if p.song != nil && p.song.SongMode() {
		track := 0
		if p.sequence != nil {
			track = p.sequence.SceneIndex()
		}
		playbackOffset = p.song.PartOffset(p.channelIndex, track, p.partIndex)
	}
	override := p.overrideChannel()
	for increment := 0; increment <= progressionLength; increment++ {
		position := sequencePosition - playbackOffset + uint64(increment)
		stepIndex, stepDuration, relevant := stepPosition(p.noteLength, position)
		if !relevant {
			continue
		}
		wrapped := int(stepIndex % uint64(span))
		buffers := p.compiledBuffers(wrapped, stepDuration, override)
		if p.destination == SampleLoopedDestination {
			// A looping channel makes no patterny sounds of its own.
			continue
		}
		for offset, buffer := range buffers {
			if buffer.Len() == 0 {
				continue
			}
			at := increment + offset
			if at < 0 {
				at = 0
			}
			p.transport.ScheduleMidiBuffer(buffer, at)
		}
	}
}

// UpdateSequencePosition moves the visible playhead when the pattern is
// relevant at the given position. Driven per tick by the transport.
func (p *Pattern) UpdateSequencePosition(sequencePosition uint64) {
	p.mu.Lock()
	shouldTrack := p.shouldSchedule() || sequencePosition == 0
	changed := false
	var row, column int
	if shouldTrack {
		span := p.availableBars * p.width
		if span > 0 {
			if stepIndex, _, relevant := stepPosition(p.noteLength, sequencePosition); relevant {
				wrapped := int(stepIndex % uint64(span))
				row = (wrapped/p.width)%p.availableBars + p.bankOffset
				column = wrapped % p.width
				changed = row != p.playingRow || column != p.playingColumn
				p.playingRow = row
				p.playingColumn = column
			}
		}
	}
	p.refillNotePool()
	p.mu.Unlock()
	if changed {
		p.notify(PlayheadChanged, row, column)
	}
}

// HandleSequenceStop is invoked when the transport halts; live recording
// does not survive a stop.
func (p *Pattern) HandleSequenceStop() {
	p.SetRecordLive(false)
	p.ResetPlayhead()
}

// InvalidateCompiled drops every cached buffer, forcing a rebuild on the
// next advancement. Needed when the session's current channel changes under
// a control-channel pattern.
func (p *Pattern) InvalidateCompiled() {
	p.mu.Lock()
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
}

// HandleMidiMessage consumes one observed channel-voice message. Sample
// destinations convert matching notes to clip commands; live recording
// collects matching note-on/note-off pairs.
func (p *Pattern) HandleMidiMessage(byte1, byte2, byte3 byte, timestamp float64) {
	p.dispatchSample(byte1, byte2, byte3)
	p.recordMessage(byte1, byte2, byte3, timestamp)
}

func (p *Pattern) dispatchSample(byte1, byte2, byte3 byte) {
	p.mu.Lock()
	sounding := p.sequence == nil || (p.sequence.ShouldMakeSounds() &&
		(p.sequence.SoloPatternIndex() == p.index || (p.sequence.SoloPatternIndex() == -1 && p.enabled)))
	sampled := p.destination == SampleTriggerDestination || p.destination == SampleSlicedDestination
	if !sounding || !sampled || byte1 < 0x80 || byte1 >= 0xA0 {
		p.mu.Unlock()
		return
	}
	channel := int(byte1 & 0x0F)
	// Events with no routable channel of their own arrive on channel 9;
	// patterns parked outside the synth channels accept those too.
	accepted := p.midiChannel == channel || ((p.midiChannel < 0 || p.midiChannel > 8) && channel == 9)
	if !accepted {
		p.mu.Unlock()
		return
	}
	commands := p.clipCommandsFor(byte1, byte2, byte3)
	trans := p.transport
	p.mu.Unlock()
	if trans == nil {
		return
	}
	for _, command := range commands {
		playerDebug("dispatching clip command for note %d on channel %d", byte2, channel)
		trans.ScheduleClipCommand(command, 0)
	}
}

// clipCommandsFor builds sampler commands for every associated clip whose
// key zone contains the note. Caller holds p.mu.
func (p *Pattern) clipCommandsFor(byte1, byte2, byte3 byte) []*transport.ClipCommand {
	if p.clips == nil {
		return nil
	}
	var commands []*transport.ClipCommand
	for _, clipID := range p.clipIDs {
		clip := p.clips.ByID(clipID)
		if clip == nil {
			continue
		}
		if int(byte2) < clip.KeyZoneStart() || int(byte2) > clip.KeyZoneEnd() {
			continue
		}
		command := transport.ChannelCommand(clip, p.midiChannel)
		command.StartPlayback = byte1 > 0x8F
		command.StopPlayback = byte1 < 0x90
		if command.StartPlayback {
			command.ChangeVolume = true
			command.Volume = float64(byte3) / 128
		}
		if p.destination == SampleSlicedDestination {
			command.MidiNote = 60
			command.ChangeSlice = true
			command.Slice = clip.SliceForMidiNote(int(byte2))
		} else {
			command.MidiNote = int(byte2)
		}
		commands = append(commands, command)
	}
	return commands
}
