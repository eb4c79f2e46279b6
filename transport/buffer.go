package transport

import "gitlab.com/gomidi/midi/v2"

// MidiBuffer is an ordered collection of MIDI messages scheduled together.
// Messages keep the order they were added in; the transport honours that
// order when the buffer fires.
type MidiBuffer struct {
	messages []midi.Message
}

// NewMidiBuffer creates an empty buffer.
func NewMidiBuffer() *MidiBuffer {
	return &MidiBuffer{}
}

// Add appends a message to the buffer.
func (b *MidiBuffer) Add(message midi.Message) {
	b.messages = append(b.messages, message)
}

// Messages returns the buffered messages in insertion order.
func (b *MidiBuffer) Messages() []midi.Message {
	return b.messages
}

// Len returns the number of buffered messages.
func (b *MidiBuffer) Len() int {
	return len(b.messages)
}

// Clear removes all messages, retaining capacity.
func (b *MidiBuffer) Clear() {
	b.messages = b.messages[:0]
}
