package commands

import (
	"fmt"
	"strconv"
	"strings"
)

// pitchClasses maps the natural note letters onto their semitone within an
// octave; accidentals adjust from there.
var pitchClasses = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

var noteLabels = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteNameToMIDI parses a note name like "C4", "F#3" or "Eb2" into a MIDI
// note number. Octave -1 holds MIDI note 0, so "C4" is middle C (60).
func NoteNameToMIDI(name string) (uint8, error) {
	if len(name) < 2 {
		return 0, fmt.Errorf("cannot parse note %q", name)
	}
	semitone, ok := pitchClasses[name[0]]
	if !ok {
		return 0, fmt.Errorf("cannot parse note %q", name)
	}
	rest := name[1:]
	if strings.HasPrefix(rest, "#") {
		semitone++
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "b") {
		semitone--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("cannot parse note %q", name)
	}
	value := (octave+1)*12 + semitone
	if value < 0 || value > 127 {
		return 0, fmt.Errorf("note %q is outside the MIDI range", name)
	}
	return uint8(value), nil
}

// MIDIToNoteName renders a MIDI note number as a name, e.g. 60 -> "C4".
func MIDIToNoteName(midiNote uint8) string {
	return fmt.Sprintf("%s%d", noteLabels[midiNote%12], int(midiNote)/12-1)
}
