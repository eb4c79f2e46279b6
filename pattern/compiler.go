package pattern

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/zynthbox/playgrid/note"
	"github.com/zynthbox/playgrid/transport"
)

// stepDurationFor maps the note-length selector onto sub-steps per step.
// The ladder runs from 32 sub-steps (quarter speed) down to 1 (octuple).
func stepDurationFor(noteLength int) int {
	switch noteLength {
	case 1:
		return 32
	case 2:
		return 16
	case 3:
		return 8
	case 4:
		return 4
	case 5:
		return 2
	case 6:
		return 1
	}
	return 0
}

// stepPosition reduces an absolute sub-step position to a step index. A
// pattern is only relevant at positions that are multiples of its step
// duration; for those the position is divided down so each step counts one.
func stepPosition(noteLength int, position uint64) (stepIndex uint64, stepDuration int, relevant bool) {
	stepDuration = stepDurationFor(noteLength)
	if stepDuration == 0 {
		return 0, 0, false
	}
	if position%uint64(stepDuration) != 0 {
		return 0, stepDuration, false
	}
	return position / uint64(stepDuration), stepDuration, true
}

// invalidateCell drops the compiled buffers for a mutated cell and for the
// lookahead cells preceding it, since those may have absorbed its
// negative-delay sub-notes. Caller holds p.mu.
func (p *Pattern) invalidateCell(row, column int) {
	span := p.availableBars * p.width
	if span <= 0 {
		p.compiled = make(map[int]map[int]*transport.MidiBuffer)
		return
	}
	relative := (row-p.bankOffset)*p.width + column
	for back := 0; back <= p.lookahead; back++ {
		wrapped := ((relative-back)%span + span) % span
		delete(p.compiled, wrapped+p.bankOffset*p.width)
	}
}

// appendNote writes a note on/off pair's single message into a buffer,
// applying the channel override. Notes that would land outside 0..15, and
// anything on the control channel, are dropped.
func appendNote(buffer *transport.MidiBuffer, theNote *note.Note, velocity uint8, setOn bool, overrideChannel int) {
	channel := theNote.Channel()
	if overrideChannel > -1 {
		channel = overrideChannel
	}
	if channel < 0 || channel >= ControlChannel {
		return
	}
	if setOn {
		buffer.Add(midi.NoteOn(uint8(channel), uint8(theNote.MidiNote()), velocity))
	} else {
		buffer.Add(midi.NoteOffVelocity(uint8(channel), uint8(theNote.MidiNote()), velocity))
	}
}

func bufferAt(buffers map[int]*transport.MidiBuffer, offset int) *transport.MidiBuffer {
	buffer, ok := buffers[offset]
	if !ok {
		buffer = transport.NewMidiBuffer()
		buffers[offset] = buffer
	}
	return buffer
}

func metadataValue(entry map[string]int, key string, fallback int) int {
	if value, ok := entry[key]; ok {
		return value
	}
	return fallback
}

// compiledBuffers returns the per-offset buffer map for the step at
// stepIndex (already reduced and wrapped into the available range),
// building and caching it on miss. Caller holds p.mu.
func (p *Pattern) compiledBuffers(stepIndex int, stepDuration int, overrideChannel int) map[int]*transport.MidiBuffer {
	key := stepIndex + p.bankOffset*p.width
	if buffers, ok := p.compiled[key]; ok {
		return buffers
	}
	buffers := make(map[int]*transport.MidiBuffer)
	span := p.availableBars * p.width
	fallbackDuration := stepDuration
	if p.defaultNoteDuration > 0 {
		fallbackDuration = p.defaultNoteDuration
	}
	for ahead := 0; ahead <= p.lookahead; ahead++ {
		position := (stepIndex + ahead) % span
		row := (position / p.width) % p.availableBars
		column := position - row*p.width
		cellIndex := (row+p.bankOffset)*p.width + column
		if cellIndex < 0 || cellIndex >= len(p.cells) {
			continue
		}
		theNote := p.cells[cellIndex].note
		if theNote == nil {
			continue
		}
		subnotes := theNote.Subnotes()
		metadata := p.cells[cellIndex].metadata
		if ahead == 0 {
			switch {
			case len(metadata) == len(subnotes):
				for i, subnote := range subnotes {
					entry := metadata[i]
					if len(entry) == 0 {
						appendNote(bufferAt(buffers, 0), subnote, defaultVelocity, true, overrideChannel)
						appendNote(bufferAt(buffers, fallbackDuration), subnote, defaultVelocity, false, overrideChannel)
						continue
					}
					velocity := metadataValue(entry, VelocityKey, defaultVelocity)
					delay := metadataValue(entry, DelayKey, 0)
					duration := metadataValue(entry, DurationKey, fallbackDuration)
					if duration < 1 {
						duration = fallbackDuration
					}
					appendNote(bufferAt(buffers, delay), subnote, uint8(velocity), true, overrideChannel)
					appendNote(bufferAt(buffers, delay+duration), subnote, uint8(velocity), false, overrideChannel)
				}
			case len(subnotes) > 0:
				for _, subnote := range subnotes {
					appendNote(bufferAt(buffers, 0), subnote, defaultVelocity, true, overrideChannel)
					appendNote(bufferAt(buffers, fallbackDuration), subnote, defaultVelocity, false, overrideChannel)
				}
			default:
				appendNote(bufferAt(buffers, 0), theNote, defaultVelocity, true, overrideChannel)
				appendNote(bufferAt(buffers, fallbackDuration), theNote, defaultVelocity, false, overrideChannel)
			}
			continue
		}
		// Lookahead cells only contribute sub-notes that ask to fire early.
		if len(metadata) != len(subnotes) {
			continue
		}
		adjustment := ahead * stepDuration
		for i, subnote := range subnotes {
			entry := metadata[i]
			delay, ok := entry[DelayKey]
			if !ok || delay >= 0 {
				continue
			}
			velocity := metadataValue(entry, VelocityKey, defaultVelocity)
			duration := metadataValue(entry, DurationKey, fallbackDuration)
			if duration < 1 {
				duration = fallbackDuration
			}
			appendNote(bufferAt(buffers, adjustment+delay), subnote, uint8(velocity), true, overrideChannel)
			appendNote(bufferAt(buffers, adjustment+delay+duration), subnote, uint8(velocity), false, overrideChannel)
		}
	}
	p.compiled[key] = buffers
	return buffers
}

// CompiledBuffers exposes the compiled buffer map for one step position,
// building it on demand. Mostly useful for inspection and tests; playback
// goes through HandleSequenceAdvancement.
func (p *Pattern) CompiledBuffers(stepIndex int) map[int]*transport.MidiBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	span := p.availableBars * p.width
	if span <= 0 {
		return nil
	}
	return p.compiledBuffers(stepIndex%span, stepDurationFor(p.noteLength), p.overrideChannel())
}

// HasCompiledBuffers reports whether a step position is currently cached.
func (p *Pattern) HasCompiledBuffers(stepIndex int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.compiled[stepIndex+p.bankOffset*p.width]
	return ok
}

// overrideChannel resolves the control-channel redirection. Caller holds
// p.mu.
func (p *Pattern) overrideChannel() int {
	if p.midiChannel == ControlChannel {
		return p.currentMidiChannel()
	}
	return -1
}
