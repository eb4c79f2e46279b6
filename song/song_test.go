package song

import (
	"testing"

	"github.com/zynthbox/playgrid/transport"
)

// fakeClip satisfies transport.Clip
type fakeClip struct {
	id int
}

func (f *fakeClip) ID() int                    { return f.id }
func (f *fakeClip) KeyZoneStart() int          { return 0 }
func (f *fakeClip) KeyZoneEnd() int            { return 127 }
func (f *fakeClip) SliceForMidiNote(n int) int { return 0 }
func (f *fakeClip) Slices() int                { return 0 }
func (f *fakeClip) SliceBaseMidiNote() int     { return 60 }
func (f *fakeClip) VolumeAbsolute() float64    { return 0.75 }
func (f *fakeClip) RootNote() int              { return 60 }

// fakeResolver satisfies transport.ClipResolver
type fakeResolver struct {
	clips map[int]transport.Clip
}

func (f *fakeResolver) ByID(id int) transport.Clip { return f.clips[id] }

// fakePlayback records playback hookups
type fakePlayback struct {
	prepared     int
	disconnected int
}

func (f *fakePlayback) PrepareSequencePlayback()    { f.prepared++ }
func (f *fakePlayback) DisconnectSequencePlayback() { f.disconnected++ }

func newTestScheduler(t *testing.T) (*Scheduler, *transport.Manual, *fakeResolver) {
	t.Helper()
	trans := transport.NewManual()
	resolver := &fakeResolver{clips: map[int]transport.Clip{
		7: &fakeClip{id: 7},
		8: &fakeClip{id: 8},
	}}
	return NewScheduler(trans, resolver), trans, resolver
}

// TestSegmentDuration tests the bar/beat to sub-step conversion
func TestSegmentDuration(t *testing.T) {
	segment := Segment{BarLength: 2, BeatLength: 1}
	// (2*4 + 1) beats at 32 sub-steps per beat.
	if got := segment.Duration(32); got != 9*32 {
		t.Errorf("Duration = %d, want %d", got, 9*32)
	}
}

// TestStartClipLoopAtZero tests scenario 4: a sample-loop clip in segment 0
// reaches the transport as a StartClipLoop at sub-step 0
func TestStartClipLoopAtZero(t *testing.T) {
	scheduler, trans, _ := newTestScheduler(t)
	scheduler.SetSongMode(true)
	scheduler.SetChannelMode(2, SampleLoopMode)
	scheduler.SetSegments([]Segment{
		{BarLength: 1, Clips: []ClipRef{{Channel: 2, ClipID: 7}}},
	})
	scheduler.RebuildPlaylist()

	scheduler.StartPlayback(0, 0)

	var loopStart *transport.TimerCommand
	for _, scheduled := range trans.ScheduledTimers() {
		if scheduled.Command.Operation == transport.StartClipLoopOperation {
			loopStart = scheduled.Command
		}
	}
	if loopStart == nil {
		t.Fatal("no StartClipLoop command reached the transport")
	}
	if loopStart.Parameter != 2 || loopStart.Parameter2 != 7 || loopStart.Parameter3 != 60 {
		t.Errorf("StartClipLoop = (%d, %d, %d), want (2, 7, 60)",
			loopStart.Parameter, loopStart.Parameter2, loopStart.Parameter3)
	}
	if loopStart.ClipCommand == nil || !loopStart.ClipCommand.StartPlayback || !loopStart.ClipCommand.Looping {
		t.Error("StartClipLoop lacks a prepared looping clip command")
	}
	if loopStart.ClipCommand.MidiNote != 60 {
		t.Errorf("loop MidiNote = %d, want 60", loopStart.ClipCommand.MidiNote)
	}
	if !trans.TimerRunning() {
		t.Error("transport did not start")
	}
}

// TestMidSongStart tests scenario 5: starting at offset 40 across two
// segments establishes both parts with their original offsets, without
// dispatching any StopPlayback
func TestMidSongStart(t *testing.T) {
	scheduler, trans, _ := newTestScheduler(t)
	scheduler.SetSongMode(true)
	// One bar = 4 beats = 128 sub-steps at multiplier 32; use beat lengths
	// to get 32-sub-step segments instead.
	segmentA := Segment{BeatLength: 1, Clips: []ClipRef{{Channel: 0, Column: 0, Part: 0}}}
	segmentB := Segment{BeatLength: 1, Clips: []ClipRef{
		{Channel: 0, Column: 0, Part: 0},
		{Channel: 1, Column: 0, Part: 1},
	}}
	scheduler.SetSegments([]Segment{segmentA, segmentB})
	scheduler.RebuildPlaylist()

	scheduler.StartPlayback(40, 0)

	if !scheduler.PartActive(0, 0, 0) {
		t.Error("part A inactive after mid-song start")
	}
	if !scheduler.PartActive(1, 0, 1) {
		t.Error("part B inactive after mid-song start")
	}
	if got := scheduler.PartOffset(0, 0, 0); got != 0 {
		t.Errorf("part A offset = %d, want 0", got)
	}
	if got := scheduler.PartOffset(1, 0, 1); got != 32 {
		t.Errorf("part B offset = %d, want 32", got)
	}
	for _, scheduled := range trans.ScheduledTimers() {
		if scheduled.Command.Operation == transport.StopPlaybackOperation {
			t.Error("the pre-start dry run dispatched a StopPlayback")
		}
	}
}

// TestSegmentTransitionStopsRemovedClips tests that a clip missing from
// the next segment gets a stop command at the boundary
func TestSegmentTransitionStopsRemovedClips(t *testing.T) {
	scheduler, trans, _ := newTestScheduler(t)
	scheduler.SetSongMode(true)
	scheduler.SetChannelMode(2, SampleLoopMode)
	scheduler.SetSegments([]Segment{
		{BeatLength: 1, Clips: []ClipRef{{Channel: 2, ClipID: 7}}},
		{BeatLength: 1, Clips: []ClipRef{{Channel: 2, ClipID: 8}}},
	})
	scheduler.RebuildPlaylist()

	scheduler.StartPlayback(0, 0)
	trans.Reset()
	// Walk the transport across the segment boundary at sub-step 32.
	for i := 0; i < 32; i++ {
		trans.Tick()
	}

	var sawStop7, sawStart8 bool
	for _, scheduled := range trans.ScheduledTimers() {
		command := scheduled.Command
		if command.Operation == transport.StopClipLoopOperation && command.Parameter2 == 7 {
			sawStop7 = true
		}
		if command.Operation == transport.StartClipLoopOperation && command.Parameter2 == 8 {
			sawStart8 = true
		}
	}
	if !sawStop7 {
		t.Error("removed clip was not stopped at the segment boundary")
	}
	if !sawStart8 {
		t.Error("added clip was not started at the segment boundary")
	}
}

// TestEndOfSongStopsPlayback tests the terminal StopPlayback and the
// sequence disconnect that precedes it
func TestEndOfSongStopsPlayback(t *testing.T) {
	scheduler, trans, _ := newTestScheduler(t)
	playback := &fakePlayback{}
	scheduler.AttachSequences([]Playback{playback})
	scheduler.SetSongMode(true)
	scheduler.SetSegments([]Segment{
		{BeatLength: 1, Clips: []ClipRef{{Channel: 0, Column: 0, Part: 0}}},
	})
	scheduler.RebuildPlaylist()

	scheduler.StartPlayback(0, 0)
	if playback.prepared != 1 {
		t.Fatalf("prepared %d times, want 1", playback.prepared)
	}
	for i := 0; i < 32; i++ {
		trans.Tick()
	}
	if playback.disconnected == 0 {
		t.Error("sequences were not disconnected at end of song")
	}
	if trans.TimerRunning() {
		t.Error("transport still running after end of song")
	}
	if scheduler.PartActive(0, 0, 0) {
		t.Error("playfield not cleared after stop")
	}
}

// TestStopFansOutToAllLanes tests that stopping playback stops running
// loops on the dry, effected and every per-channel lane
func TestStopFansOutToAllLanes(t *testing.T) {
	scheduler, trans, resolver := newTestScheduler(t)
	scheduler.SetSongMode(true)

	// Report a loop as running, then stop the transport.
	trans.Start(120)
	command := transport.ChannelCommand(resolver.ByID(7), 2)
	command.StartPlayback = true
	trans.ScheduleClipCommand(command, 0)
	trans.Reset()
	trans.Stop()

	stops := make(map[int]bool)
	for _, scheduled := range trans.ScheduledClips() {
		if scheduled.Command.StopPlayback {
			stops[scheduled.Command.MidiChannel] = true
		}
	}
	if !stops[transport.NoEffectLane] || !stops[transport.EffectedLane] {
		t.Error("stop did not cover the dry and effected lanes")
	}
	for channel := 0; channel < 10; channel++ {
		if !stops[channel] {
			t.Errorf("stop did not cover channel %d", channel)
		}
	}
	_ = scheduler
}

// TestPlaylistEmptyOutsideSongMode tests that song mode off yields no
// playlist
func TestPlaylistEmptyOutsideSongMode(t *testing.T) {
	scheduler, trans, _ := newTestScheduler(t)
	scheduler.SetSegments([]Segment{
		{BeatLength: 1, Clips: []ClipRef{{Channel: 0}}},
	})
	scheduler.RebuildPlaylist()

	scheduler.StartPlayback(0, 0)
	trans.Reset()
	for i := 0; i < 40; i++ {
		trans.Tick()
	}
	if len(trans.ScheduledTimers()) != 0 {
		t.Error("commands dispatched while song mode is off")
	}
}
