package recorder

import (
	"bytes"
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"
)

// ticksPerQuarter is the SMF resolution the recorder writes at.
const ticksPerQuarter = 480

// microsToTicks converts a microsecond timestamp to SMF ticks at the given
// tempo.
func microsToTicks(micros float64, bpm int) uint32 {
	beats := micros / 1_000_000 * float64(bpm) / 60
	return uint32(beats * ticksPerQuarter)
}

// Midi serialises the captured take as a single-track Standard MIDI File.
func (r *Recorder) Midi() ([]byte, error) {
	r.mu.Lock()
	events := append([]recordedEvent(nil), r.events...)
	r.mu.Unlock()

	bpm := r.transport.BPM()
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var track smf.Track
	microsecondsPerBeat := uint32(60_000_000 / bpm)
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	}))

	var lastTick uint32
	for _, event := range events {
		tick := microsToTicks(event.timestamp, bpm)
		if tick < lastTick {
			tick = lastTick
		}
		track.Add(tick-lastTick, smf.Message([]byte{event.byte1, event.byte2, event.byte3}))
		lastTick = tick
	}
	track.Close(0)

	if err := file.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}
	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write midi: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadFromMidi replaces the take with track 0 of the given SMF stream. A
// parse failure leaves the current take untouched.
func (r *Recorder) LoadFromMidi(data []byte) error {
	file, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to read midi: %w", err)
	}
	if len(file.Tracks) == 0 {
		return fmt.Errorf("midi stream contains no tracks")
	}
	resolution := float64(ticksPerQuarter)
	if metric, ok := file.TimeFormat.(smf.MetricTicks); ok {
		resolution = float64(metric.Resolution())
	}

	microsecondsPerBeat := 500_000.0 // 120 BPM until a tempo event says otherwise
	var loaded []recordedEvent
	var tick int64
	for _, event := range file.Tracks[0] {
		tick += int64(event.Delta)
		message := []byte(event.Message)
		if len(message) >= 6 && message[0] == 0xFF && message[1] == 0x51 && message[2] == 0x03 {
			microsecondsPerBeat = float64(uint32(message[3])<<16 | uint32(message[4])<<8 | uint32(message[5]))
			continue
		}
		if len(message) < 3 || message[0] < 0x80 || message[0] >= 0xA0 {
			continue
		}
		loaded = append(loaded, recordedEvent{
			byte1:     message[0],
			byte2:     message[1],
			byte3:     message[2],
			timestamp: float64(tick) * microsecondsPerBeat / resolution,
		})
	}

	r.mu.Lock()
	r.events = loaded
	r.mu.Unlock()
	return nil
}
