package pattern

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"

	"github.com/zynthbox/playgrid/transport"
)

// Width returns the number of steps per bar.
func (p *Pattern) Width() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width
}

// SetWidth resizes every row. Shrinking drops the tail cells of each row.
func (p *Pattern) SetWidth(width int) error {
	p.mu.Lock()
	if width < 1 {
		p.mu.Unlock()
		return fmt.Errorf("width must be positive, got %d", width)
	}
	if width == p.width {
		p.mu.Unlock()
		return nil
	}
	resized := make([]cell, width*p.height)
	for row := 0; row < p.height; row++ {
		for column := 0; column < width && column < p.width; column++ {
			resized[row*width+column] = p.cells[row*p.width+column]
		}
	}
	p.cells = resized
	p.width = width
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(StructureChanged, -1, -1)
	return nil
}

// Height returns the number of rows in the full grid.
func (p *Pattern) Height() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height
}

// SetHeight resizes the grid's row count. Shrinking drops the tail rows.
func (p *Pattern) SetHeight(height int) error {
	p.mu.Lock()
	if height < 1 {
		p.mu.Unlock()
		return fmt.Errorf("height must be positive, got %d", height)
	}
	if height == p.height {
		p.mu.Unlock()
		return nil
	}
	resized := make([]cell, p.width*height)
	copy(resized, p.cells)
	p.cells = resized
	p.height = height
	if p.availableBars > height {
		p.availableBars = height
	}
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(StructureChanged, -1, -1)
	return nil
}

// AvailableBars returns how many rows of the current bank play back.
func (p *Pattern) AvailableBars() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableBars
}

// SetAvailableBars sets the number of played-back rows, clamped to
// [1, bankLength].
func (p *Pattern) SetAvailableBars(bars int) {
	p.mu.Lock()
	if bars < 1 {
		bars = 1
	}
	if bars > p.bankLength {
		bars = p.bankLength
	}
	if bars == p.availableBars {
		p.mu.Unlock()
		return
	}
	p.availableBars = bars
	if p.activeBar >= bars {
		p.activeBar = bars - 1
	}
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// ActiveBar returns the bar currently selected for editing.
func (p *Pattern) ActiveBar() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeBar
}

// SetActiveBar selects a bar for editing; out-of-range values are ignored.
func (p *Pattern) SetActiveBar(bar int) {
	p.mu.Lock()
	if bar < 0 || bar >= p.availableBars || bar == p.activeBar {
		p.mu.Unlock()
		return
	}
	p.activeBar = bar
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// BankOffset returns the first row of the bank window.
func (p *Pattern) BankOffset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bankOffset
}

// SetBankOffset moves the bank window.
func (p *Pattern) SetBankOffset(offset int) {
	p.mu.Lock()
	if offset < 0 || offset == p.bankOffset {
		p.mu.Unlock()
		return
	}
	p.bankOffset = offset
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// BankLength returns the number of rows per bank.
func (p *Pattern) BankLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bankLength
}

// SetBankLength resizes the bank window, clamping availableBars to it.
func (p *Pattern) SetBankLength(length int) {
	p.mu.Lock()
	if length < 1 || length == p.bankLength {
		p.mu.Unlock()
		return
	}
	p.bankLength = length
	if p.availableBars > length {
		p.availableBars = length
	}
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// Bank returns the bank's letter name ("A".."H").
func (p *Pattern) Bank() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	bank := p.bankOffset / p.bankLength
	if bank < 0 || bank >= len(bankNames) {
		return "?"
	}
	return bankNames[bank]
}

// SetBank selects a bank by letter name.
func (p *Pattern) SetBank(name string) {
	for bank, bankName := range bankNames {
		if bankName == name {
			p.SetBankOffset(bank * p.BankLength())
			return
		}
	}
}

// NoteLength returns the step-duration selector (1..6).
func (p *Pattern) NoteLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.noteLength
}

// SetNoteLength sets the step-duration selector (1..6).
func (p *Pattern) SetNoteLength(noteLength int) error {
	p.mu.Lock()
	if noteLength < 1 || noteLength > 6 {
		p.mu.Unlock()
		return fmt.Errorf("note length must be 1-6, got %d", noteLength)
	}
	if noteLength == p.noteLength {
		p.mu.Unlock()
		return nil
	}
	p.noteLength = noteLength
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
	return nil
}

// StepDuration returns the step length in sub-steps for the current
// note-length selector.
func (p *Pattern) StepDuration() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return stepDurationFor(p.noteLength)
}

// DefaultNoteDuration returns the duration applied to sub-notes without an
// explicit one; 0 means "use the step length".
func (p *Pattern) DefaultNoteDuration() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defaultNoteDuration
}

// SetDefaultNoteDuration sets the fallback note duration in sub-steps.
func (p *Pattern) SetDefaultNoteDuration(duration int) {
	p.mu.Lock()
	if duration < 0 || duration == p.defaultNoteDuration {
		p.mu.Unlock()
		return
	}
	p.defaultNoteDuration = duration
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// MidiChannel returns the pattern's midi channel.
func (p *Pattern) MidiChannel() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.midiChannel
}

// SetMidiChannel moves the pattern to another channel. Every note reference
// in the grid is remapped to the equivalent note on the new channel, and an
// all-notes-off goes out on the old channel before the next step fires.
func (p *Pattern) SetMidiChannel(channel int) error {
	p.mu.Lock()
	if channel < 0 || channel > 15 {
		p.mu.Unlock()
		return fmt.Errorf("midi channel must be 0-15, got %d", channel)
	}
	if channel == p.midiChannel {
		p.mu.Unlock()
		return nil
	}
	previous := p.midiChannel
	p.midiChannel = channel
	for i := range p.cells {
		if p.cells[i].note == nil {
			continue
		}
		p.cells[i].note = p.registry.OnChannel(p.cells[i].note, channel)
	}
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	trans := p.transport
	p.mu.Unlock()

	if trans != nil && previous != ControlChannel {
		silence := transport.NewMidiBuffer()
		silence.Add(midi.ControlChange(uint8(previous), 123, 0))
		trans.ScheduleMidiBuffer(silence, 0)
	}
	p.notify(SettingsChanged, -1, -1)
	return nil
}

// ExternalMidiChannel returns the external routing override, or -1.
func (p *Pattern) ExternalMidiChannel() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.externalMidiChannel
}

// SetExternalMidiChannel sets the external routing override; -1 disables it.
func (p *Pattern) SetExternalMidiChannel(channel int) {
	p.mu.Lock()
	if channel < -1 || channel > 15 || channel == p.externalMidiChannel {
		p.mu.Unlock()
		return
	}
	p.externalMidiChannel = channel
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// NoteDestination returns where the pattern's notes are sent.
func (p *Pattern) NoteDestination() Destination {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destination
}

// SetNoteDestination changes the pattern's output routing, silencing the
// current channel first.
func (p *Pattern) SetNoteDestination(destination Destination) {
	p.mu.Lock()
	if destination == p.destination {
		p.mu.Unlock()
		return
	}
	p.destination = destination
	channel := p.midiChannel
	trans := p.transport
	p.mu.Unlock()
	if trans != nil && channel != ControlChannel {
		silence := transport.NewMidiBuffer()
		silence.Add(midi.ControlChange(uint8(channel), 123, 0))
		trans.ScheduleMidiBuffer(silence, 0)
	}
	p.notify(SettingsChanged, -1, -1)
}

// ChannelIndex returns the sequencer channel (0..9) the pattern belongs to.
func (p *Pattern) ChannelIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelIndex
}

// SetChannelIndex sets the sequencer channel used for playfield lookups.
func (p *Pattern) SetChannelIndex(index int) {
	p.mu.Lock()
	p.channelIndex = index
	p.mu.Unlock()
}

// PartIndex returns the part slot (0..4) the pattern occupies.
func (p *Pattern) PartIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.partIndex
}

// SetPartIndex sets the part slot used for playfield lookups.
func (p *Pattern) SetPartIndex(index int) {
	p.mu.Lock()
	p.partIndex = index
	p.mu.Unlock()
}

// PartName returns the part slot's letter name (a..e).
func (p *Pattern) PartName() string {
	names := []string{"a", "b", "c", "d", "e"}
	index := p.PartIndex()
	if index < 0 || index >= len(names) {
		return "?"
	}
	return names[index]
}

// Enabled reports whether the pattern participates in playback.
func (p *Pattern) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetEnabled toggles the pattern's participation in playback.
func (p *Pattern) SetEnabled(enabled bool) {
	p.mu.Lock()
	if enabled == p.enabled {
		p.mu.Unlock()
		return
	}
	p.enabled = enabled
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// Muted reports whether the owning channel is muted.
func (p *Pattern) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// SetMuted mutes or unmutes the pattern's channel.
func (p *Pattern) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

// ClipIDs returns the sampler clips associated with the pattern.
func (p *Pattern) ClipIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.clipIDs...)
}

// SetClipIDs associates sampler clips with the pattern.
func (p *Pattern) SetClipIDs(ids []int) {
	p.mu.Lock()
	p.clipIDs = append([]int(nil), ids...)
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// PlayingRow returns the row of the most recent playhead position, or -1
// while the transport is stopped.
func (p *Pattern) PlayingRow() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playingRow
}

// PlayingColumn returns the column of the most recent playhead position, or
// -1 while the transport is stopped.
func (p *Pattern) PlayingColumn() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playingColumn
}

// ResetPlayhead clears playingRow/playingColumn, as happens when the
// transport stops.
func (p *Pattern) ResetPlayhead() {
	p.mu.Lock()
	changed := p.playingRow != -1 || p.playingColumn != -1
	p.playingRow = -1
	p.playingColumn = -1
	p.mu.Unlock()
	if changed {
		p.notify(PlayheadChanged, -1, -1)
	}
}
