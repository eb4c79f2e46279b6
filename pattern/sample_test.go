package pattern

import (
	"testing"

	"github.com/zynthbox/playgrid/transport"
)

// fakeClip satisfies transport.Clip
type fakeClip struct {
	id           int
	keyZoneStart int
	keyZoneEnd   int
	slices       int
	baseNote     int
}

func (f *fakeClip) ID() int                 { return f.id }
func (f *fakeClip) KeyZoneStart() int       { return f.keyZoneStart }
func (f *fakeClip) KeyZoneEnd() int         { return f.keyZoneEnd }
func (f *fakeClip) Slices() int             { return f.slices }
func (f *fakeClip) SliceBaseMidiNote() int  { return f.baseNote }
func (f *fakeClip) VolumeAbsolute() float64 { return 0.8 }
func (f *fakeClip) RootNote() int           { return 60 }
func (f *fakeClip) SliceForMidiNote(midiNote int) int {
	if f.slices == 0 {
		return 0
	}
	return (midiNote - f.baseNote) % f.slices
}

// fakeResolver satisfies transport.ClipResolver
type fakeResolver struct {
	clips map[int]transport.Clip
}

func (f *fakeResolver) ByID(id int) transport.Clip { return f.clips[id] }

// TestSampleSlicedDispatch tests law 5: a sliced pattern converts a note
// into a clip command at note 60 with the clip's slice for the incoming
// note
func TestSampleSlicedDispatch(t *testing.T) {
	p, _, trans := newTestPattern(t)
	clip := &fakeClip{id: 7, keyZoneStart: 0, keyZoneEnd: 127, slices: 16, baseNote: 60}
	p.AttachClips(&fakeResolver{clips: map[int]transport.Clip{7: clip}})
	p.SetClipIDs([]int{7})
	p.SetNoteDestination(SampleSlicedDestination)

	p.HandleMidiMessage(0x90, 64, 100, 0)

	clips := trans.ScheduledClips()
	if len(clips) != 1 {
		t.Fatalf("scheduled %d clip commands, want 1", len(clips))
	}
	command := clips[0].Command
	if !command.StartPlayback || command.StopPlayback {
		t.Error("note-on should start playback")
	}
	if command.MidiNote != 60 {
		t.Errorf("MidiNote = %d, want 60", command.MidiNote)
	}
	if !command.ChangeSlice || command.Slice != clip.SliceForMidiNote(64) {
		t.Errorf("Slice = %d, want %d", command.Slice, clip.SliceForMidiNote(64))
	}
	if command.Volume != float64(100)/128 {
		t.Errorf("Volume = %v, want %v", command.Volume, float64(100)/128)
	}
}

// TestSampleTriggerDispatch tests trigger mode and key-zone filtering
func TestSampleTriggerDispatch(t *testing.T) {
	p, _, trans := newTestPattern(t)
	inZone := &fakeClip{id: 1, keyZoneStart: 60, keyZoneEnd: 72}
	outOfZone := &fakeClip{id: 2, keyZoneStart: 0, keyZoneEnd: 12}
	p.AttachClips(&fakeResolver{clips: map[int]transport.Clip{1: inZone, 2: outOfZone}})
	p.SetClipIDs([]int{1, 2})
	p.SetNoteDestination(SampleTriggerDestination)

	p.HandleMidiMessage(0x90, 64, 100, 0)
	clips := trans.ScheduledClips()
	if len(clips) != 1 {
		t.Fatalf("scheduled %d clip commands, want 1 (key zone filter)", len(clips))
	}
	if clips[0].Command.Clip.ID() != 1 {
		t.Errorf("dispatched to clip %d, want 1", clips[0].Command.Clip.ID())
	}
	if clips[0].Command.MidiNote != 64 {
		t.Errorf("trigger mode MidiNote = %d, want the played note 64", clips[0].Command.MidiNote)
	}

	// Note-off becomes a stop command.
	trans.Reset()
	p.HandleMidiMessage(0x80, 64, 0, 0)
	clips = trans.ScheduledClips()
	if len(clips) != 1 || !clips[0].Command.StopPlayback {
		t.Error("note-off should produce a stop command")
	}
}

// TestSampleDispatchChannelFilter tests the channel acceptance rules,
// including the channel-9 fallback for patterns parked off the synth
// channels
func TestSampleDispatchChannelFilter(t *testing.T) {
	p, _, trans := newTestPattern(t)
	clip := &fakeClip{id: 1, keyZoneStart: 0, keyZoneEnd: 127}
	p.AttachClips(&fakeResolver{clips: map[int]transport.Clip{1: clip}})
	p.SetClipIDs([]int{1})
	p.SetNoteDestination(SampleTriggerDestination)

	// Pattern on channel 0 ignores channel 3 events.
	p.HandleMidiMessage(0x93, 64, 100, 0)
	if len(trans.ScheduledClips()) != 0 {
		t.Error("foreign-channel event was dispatched")
	}

	// A pattern beyond the synth channels accepts channel 9.
	if err := p.SetMidiChannel(12); err != nil {
		t.Fatal(err)
	}
	trans.Reset()
	p.HandleMidiMessage(0x99, 64, 100, 0)
	if len(trans.ScheduledClips()) != 1 {
		t.Error("channel-9 fallback event was not dispatched")
	}
}
