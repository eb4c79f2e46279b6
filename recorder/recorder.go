// Package recorder implements the session-level MIDI recorder: a
// free-running capture of observed note on/off messages that serialises
// to a Standard MIDI File, plays back through the transport, and can be
// quantised onto a pattern grid.
package recorder

import (
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zynthbox/playgrid/note"
	"github.com/zynthbox/playgrid/transport"
)

type recordedEvent struct {
	byte1, byte2, byte3 byte
	// timestamp is microseconds since recording started.
	timestamp float64
}

// Recorder captures note on/off messages for its subscribed channels.
type Recorder struct {
	mu        sync.Mutex
	transport transport.Transport
	registry  *note.Registry

	recording bool
	playing   bool
	channels  []int
	events    []recordedEvent
	started   time.Time
}

// New creates a recorder. Recording and playback stop automatically when
// the transport halts.
func New(trans transport.Transport, registry *note.Registry) *Recorder {
	r := &Recorder{transport: trans, registry: registry}
	trans.OnTimerRunningChanged(func(running bool) {
		if running {
			return
		}
		r.mu.Lock()
		r.playing = false
		r.mu.Unlock()
		if r.IsRecording() {
			r.StopRecording(-1)
		}
	})
	return r
}

// IsRecording reports whether any channel is subscribed.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// IsPlaying reports whether a recorded take is being played back.
func (r *Recorder) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// StartRecording subscribes a channel, optionally clearing the take first.
// The first subscription starts the clock.
func (r *Recorder) StartRecording(channel int, clear bool) {
	if clear {
		r.ClearRecording()
	}
	r.mu.Lock()
	r.channels = append(r.channels, channel)
	if !r.recording {
		r.started = time.Now()
		r.recording = true
	}
	r.mu.Unlock()
}

// StopRecording unsubscribes a channel; -1 unsubscribes them all.
// Recording ends when no channels remain.
func (r *Recorder) StopRecording(channel int) {
	r.mu.Lock()
	if channel == -1 {
		r.channels = r.channels[:0]
	} else {
		kept := r.channels[:0]
		for _, subscribed := range r.channels {
			if subscribed != channel {
				kept = append(kept, subscribed)
			}
		}
		r.channels = kept
	}
	if len(r.channels) == 0 {
		r.recording = false
	}
	r.mu.Unlock()
}

// ClearRecording discards the captured events.
func (r *Recorder) ClearRecording() {
	r.mu.Lock()
	r.events = r.events[:0]
	r.mu.Unlock()
}

// HandleMidiMessage captures one observed message if it is a note message
// on a subscribed channel.
func (r *Recorder) HandleMidiMessage(byte1, byte2, byte3 byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || byte1 < 0x80 || byte1 >= 0xA0 {
		return
	}
	channel := int(byte1 & 0x0F)
	for _, subscribed := range r.channels {
		if subscribed == channel {
			r.events = append(r.events, recordedEvent{
				byte1:     byte1,
				byte2:     byte2,
				byte3:     byte3,
				timestamp: float64(time.Since(r.started).Microseconds()),
			})
			return
		}
	}
}

// EventCount returns the number of captured events.
func (r *Recorder) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// ForceToChannel rewrites the channel nibble of every captured
// channel-voice event.
func (r *Recorder) ForceToChannel(channel int) {
	if channel < 0 || channel > 15 {
		return
	}
	r.mu.Lock()
	for i := range r.events {
		status := r.events[i].byte1
		if status >= 0x80 && status < 0xF0 {
			r.events[i].byte1 = status&0xF0 | byte(channel)
		}
	}
	r.mu.Unlock()
}

// Base64Midi returns the SMF serialisation base64-encoded.
func (r *Recorder) Base64Midi() (string, error) {
	data, err := r.Midi()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// LoadFromBase64Midi replaces the take from a base64-encoded SMF stream.
func (r *Recorder) LoadFromBase64Midi(encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode base64 midi: %w", err)
	}
	return r.LoadFromMidi(data)
}

// PlayRecording schedules the whole take against the transport and starts
// it. Events sharing a timestamp go out in one buffer.
func (r *Recorder) PlayRecording() {
	r.mu.Lock()
	events := append([]recordedEvent(nil), r.events...)
	r.playing = true
	r.mu.Unlock()
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].timestamp < events[j].timestamp
	})

	bpm := r.transport.BPM()
	var buffer *transport.MidiBuffer
	lastTimestamp := -1.0
	var lastOffset int64
	flush := func() {
		if buffer != nil && buffer.Len() > 0 {
			r.transport.ScheduleMidiBuffer(buffer, int(lastOffset))
		}
	}
	for _, event := range events {
		if event.timestamp != lastTimestamp {
			flush()
			buffer = transport.NewMidiBuffer()
			lastTimestamp = event.timestamp
			lastOffset = r.transport.SecondsToSubSteps(bpm, event.timestamp/1_000_000)
		}
		buffer.Add([]byte{event.byte1, event.byte2, event.byte3})
	}
	flush()

	r.transport.Start(bpm)
	if len(events) > 0 {
		end := r.transport.SecondsToSubSteps(bpm, events[len(events)-1].timestamp/1_000_000)
		r.transport.ScheduleTimerCommand(end+1, &transport.TimerCommand{
			Operation: transport.StopPlaybackOperation,
		})
	}
}

// StopPlayback halts the transport, which in turn flips the playing state.
func (r *Recorder) StopPlayback() {
	r.transport.Stop()
}
