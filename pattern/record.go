package pattern

import (
	"math"

	"github.com/GeoffreyPlitt/debuggo"
)

var recordDebug = debuggo.Debug("playgrid:record")

const recordPoolSize = 100

// recordedNote is one live-recorded note in flight: filled on note-on,
// completed on note-off, then quantised onto the grid.
type recordedNote struct {
	timestamp    float64
	endTimestamp float64
	midiNote     int
	velocity     int

	step     uint64
	row      int
	column   int
	delay    int
	duration int
}

// RecordLive reports whether incoming notes are being recorded into the
// grid.
func (p *Pattern) RecordLive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordLive
}

// SetRecordLive switches live recording on or off. Switching off releases
// any unmatched pending notes without writing them.
func (p *Pattern) SetRecordLive(recordLive bool) {
	p.mu.Lock()
	if p.recordLive == recordLive {
		p.mu.Unlock()
		return
	}
	p.recordLive = recordLive
	if !recordLive {
		p.notePool = append(p.notePool, p.pendingNotes...)
		p.pendingNotes = p.pendingNotes[:0]
	}
	p.mu.Unlock()
	p.notify(SettingsChanged, -1, -1)
}

// RecordTolerance returns the quantisation tolerance as a fraction of the
// step duration.
func (p *Pattern) RecordTolerance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordTolerance
}

// SetRecordTolerance tunes the quantisation tolerance fraction.
func (p *Pattern) SetRecordTolerance(tolerance float64) {
	p.mu.Lock()
	if tolerance >= 0 {
		p.recordTolerance = tolerance
	}
	p.mu.Unlock()
}

// SetRecordedSink redirects completed records, letting a session manager
// move the grid write onto its editing goroutine. A nil sink restores the
// default of applying directly on the calling goroutine.
func (p *Pattern) SetRecordedSink(sink func(ApplyRecordedNote)) {
	p.mu.Lock()
	if sink == nil {
		p.recordedSink = p.applyRecordedNote
	} else {
		p.recordedSink = func(record *recordedNote) {
			sink(func() { p.applyRecordedNote(record) })
		}
	}
	p.mu.Unlock()
}

// ApplyRecordedNote is a deferred grid write handed to the recorded-note
// sink; calling it performs the quantisation and mutation.
type ApplyRecordedNote func()

// DroppedRecords returns how many note-ons were lost to pool exhaustion.
func (p *Pattern) DroppedRecords() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.droppedRecords
}

// Caller holds p.mu.
func (p *Pattern) fillNotePool() {
	for len(p.notePool) < recordPoolSize {
		p.notePool = append(p.notePool, &recordedNote{})
	}
}

// Caller holds p.mu.
func (p *Pattern) refillNotePool() {
	p.fillNotePool()
}

// recordMessage is the note-matching half of live recording, driven from
// the midi intake path.
func (p *Pattern) recordMessage(byte1, byte2, byte3 byte, timestamp float64) {
	p.mu.Lock()
	if p.recordLive && byte1 > 0x8F && byte1 < 0xA0 {
		if int(byte1-0x90) == p.midiChannel {
			if len(p.notePool) > 0 {
				pending := p.notePool[len(p.notePool)-1]
				p.notePool = p.notePool[:len(p.notePool)-1]
				*pending = recordedNote{
					timestamp: timestamp,
					midiNote:  int(byte2),
					velocity:  int(byte3),
				}
				p.pendingNotes = append(p.pendingNotes, pending)
			} else {
				p.droppedRecords++
			}
		}
	}
	var completed *recordedNote
	var sink func(*recordedNote)
	if len(p.pendingNotes) > 0 && byte1 > 0x7F && byte1 < 0x90 {
		if int(byte1-0x80) == p.midiChannel {
			for i, pending := range p.pendingNotes {
				if pending.midiNote == int(byte2) {
					p.pendingNotes = append(p.pendingNotes[:i], p.pendingNotes[i+1:]...)
					pending.endTimestamp = timestamp
					completed = pending
					sink = p.recordedSink
					break
				}
			}
		}
	}
	p.mu.Unlock()
	if completed != nil {
		sink(completed)
	}
}

// applyRecordedNote quantises a completed record onto the grid: the
// timestamp wraps around the pattern length, snaps to a step boundary when
// within tolerance, and lands as a sub-note (or updates the existing one)
// with velocity, delay and duration metadata.
func (p *Pattern) applyRecordedNote(record *recordedNote) {
	p.mu.Lock()
	stepDuration := int64(stepDurationFor(p.noteLength))
	tolerance := int64(math.Max(1, math.Ceil(float64(stepDuration)*p.recordTolerance)))
	patternLength := int64(p.width * p.availableBars)
	width := int64(p.width)
	availableBars := int64(p.availableBars)
	bankOffset := p.bankOffset
	channel := p.midiChannel
	p.mu.Unlock()
	if stepDuration == 0 || patternLength == 0 {
		return
	}

	timestamp := int64(record.timestamp)
	if timestamp < 0 {
		timestamp = 0
	}
	normalised := timestamp % (patternLength * stepDuration)
	step := normalised / stepDuration
	delay := normalised - step*stepDuration

	row := (step / width) % availableBars
	column := step - row*width

	// Notes played close to a boundary want to sit on it: snap back to the
	// current step, or forward onto the next.
	if delay < tolerance {
		delay = 0
	} else if stepDuration-delay < tolerance {
		step = (step + 1) % patternLength
		row = (step / width) % availableBars
		column = step - row*width
		delay = 0
	}

	duration := int64(record.endTimestamp) - timestamp
	if duration < 0 {
		duration = 0
	}
	// A duration within tolerance of the step length means "use the step
	// default".
	if abs64(duration-stepDuration) < tolerance {
		duration = 0
	}

	record.step = uint64(step)
	record.row = bankOffset + int(row)
	record.column = int(column)
	record.delay = int(delay)
	record.duration = int(duration)

	subnoteIndex := p.SubnoteIndex(record.row, record.column, record.midiNote)
	if subnoteIndex == -1 {
		added, err := p.AddSubnote(record.row, record.column, p.registry.GetNote(record.midiNote, channel))
		if err != nil {
			recordDebug("could not place recorded note %d at (%d, %d): %v", record.midiNote, record.row, record.column, err)
			p.releaseRecord(record)
			return
		}
		subnoteIndex = added
	} else {
		oldVelocity, _ := p.SubnoteMetadata(record.row, record.column, subnoteIndex, VelocityKey)
		oldDuration, _ := p.SubnoteMetadata(record.row, record.column, subnoteIndex, DurationKey)
		oldDelay, _ := p.SubnoteMetadata(record.row, record.column, subnoteIndex, DelayKey)
		if oldVelocity == record.velocity && oldDuration == record.duration && oldDelay == record.delay {
			// Same note, same values: nothing to write.
			p.releaseRecord(record)
			return
		}
	}
	p.SetSubnoteMetadata(record.row, record.column, subnoteIndex, VelocityKey, record.velocity)
	p.SetSubnoteMetadata(record.row, record.column, subnoteIndex, DurationKey, record.duration)
	p.SetSubnoteMetadata(record.row, record.column, subnoteIndex, DelayKey, record.delay)
	recordDebug("recorded note %d at (%d, %d) delay %d duration %d", record.midiNote, record.row, record.column, record.delay, record.duration)
	p.releaseRecord(record)
}

func (p *Pattern) releaseRecord(record *recordedNote) {
	p.mu.Lock()
	if len(p.notePool) < recordPoolSize {
		p.notePool = append(p.notePool, record)
	}
	p.mu.Unlock()
}

func abs64(value int64) int64 {
	if value < 0 {
		return -value
	}
	return value
}
