package recorder

import (
	"math"

	"github.com/zynthbox/playgrid/pattern"
)

// ApplicatorSetting flags control how a recorded take is written onto a
// pattern grid.
type ApplicatorSetting uint32

const (
	// ClearPatternBeforeApplying empties the grid first.
	ClearPatternBeforeApplying ApplicatorSetting = 1 << iota
	// LimitToPatternChannel accepts only events on the pattern's channel,
	// overriding the per-channel flags.
	LimitToPatternChannel
	ApplyChannel0
	ApplyChannel1
	ApplyChannel2
	ApplyChannel3
	ApplyChannel4
	ApplyChannel5
	ApplyChannel6
	ApplyChannel7
	ApplyChannel8
	ApplyChannel9
	ApplyChannel10
	ApplyChannel11
	ApplyChannel12
	ApplyChannel13
	ApplyChannel14
	ApplyChannel15
)

// ApplyAllChannels accepts events on every channel.
const ApplyAllChannels = ApplicatorSetting(0xFFFF) << 2

func (s ApplicatorSetting) acceptsChannel(channel int, patternChannel int) bool {
	if s&LimitToPatternChannel != 0 {
		return channel == patternChannel
	}
	return s&(ApplyChannel0<<uint(channel)) != 0
}

// ApplyToPattern quantises the recorded take onto a pattern grid: note-on
// events pair with their note-offs, land on the nearest step per the
// pattern's quantisation tolerance, and become sub-notes with velocity,
// delay and duration metadata.
func (r *Recorder) ApplyToPattern(target *pattern.Pattern, settings ApplicatorSetting) bool {
	if target == nil {
		return false
	}
	if settings&ClearPatternBeforeApplying != 0 {
		target.Clear()
	}
	r.mu.Lock()
	events := append([]recordedEvent(nil), r.events...)
	r.mu.Unlock()

	stepDuration := int64(target.StepDuration())
	patternLength := int64(target.Width() * target.AvailableBars())
	if stepDuration == 0 || patternLength == 0 {
		return false
	}
	tolerance := int64(math.Max(1, math.Ceil(float64(stepDuration)*target.RecordTolerance())))
	bpm := r.transport.BPM()
	patternChannel := target.MidiChannel()
	bankOffset := target.BankOffset()
	width := int64(target.Width())
	availableBars := int64(target.AvailableBars())

	applied := false
	consumed := make([]bool, len(events))
	for i, event := range events {
		if event.byte1 < 0x90 || event.byte1 >= 0xA0 || event.byte3 == 0 {
			continue
		}
		channel := int(event.byte1 & 0x0F)
		if !settings.acceptsChannel(channel, patternChannel) {
			continue
		}
		// Find the matching note-off.
		endTimestamp := event.timestamp
		for j := i + 1; j < len(events); j++ {
			other := events[j]
			if consumed[j] || other.byte2 != event.byte2 || int(other.byte1&0x0F) != channel {
				continue
			}
			isOff := other.byte1 < 0x90 || other.byte3 == 0
			if isOff {
				consumed[j] = true
				endTimestamp = other.timestamp
				break
			}
		}

		start := r.transport.SecondsToSubSteps(bpm, event.timestamp/1_000_000)
		end := r.transport.SecondsToSubSteps(bpm, endTimestamp/1_000_000)
		normalised := start % (patternLength * stepDuration)
		step := normalised / stepDuration
		delay := normalised - step*stepDuration
		if delay < tolerance {
			delay = 0
		} else if stepDuration-delay < tolerance {
			step = (step + 1) % patternLength
			delay = 0
		}
		row := (step / width) % availableBars
		column := step - row*width
		duration := end - start
		if duration < 0 {
			duration = 0
		}
		if abs64(duration-stepDuration) < tolerance {
			duration = 0
		}

		gridRow := bankOffset + int(row)
		subnoteIndex := target.SubnoteIndex(gridRow, int(column), int(event.byte2))
		if subnoteIndex == -1 {
			added, err := target.AddSubnote(gridRow, int(column), r.registry.GetNote(int(event.byte2), patternChannel))
			if err != nil {
				continue
			}
			subnoteIndex = added
		}
		target.SetSubnoteMetadata(gridRow, int(column), subnoteIndex, pattern.VelocityKey, int(event.byte3))
		target.SetSubnoteMetadata(gridRow, int(column), subnoteIndex, pattern.DelayKey, int(delay))
		target.SetSubnoteMetadata(gridRow, int(column), subnoteIndex, pattern.DurationKey, int(duration))
		applied = true
	}
	return applied
}

func abs64(value int64) int64 {
	if value < 0 {
		return -value
	}
	return value
}
