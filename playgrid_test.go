package playgrid

import (
	"testing"
	"time"

	"github.com/zynthbox/playgrid/pattern"
	"github.com/zynthbox/playgrid/sequence"
	"github.com/zynthbox/playgrid/transport"
)

func newTestManager(t *testing.T) (*Manager, *transport.Manual) {
	t.Helper()
	trans := transport.NewManual()
	manager := NewManager(trans, nil, nil)
	t.Cleanup(manager.Close)
	return manager, trans
}

// TestGetSequenceIdentity tests sequence interning and the global alias
func TestGetSequenceIdentity(t *testing.T) {
	manager, _ := newTestManager(t)
	global := manager.GetSequence("")
	if global.Name() != sequence.GlobalName {
		t.Errorf("Name = %q, want %q", global.Name(), sequence.GlobalName)
	}
	if manager.GetSequence(sequence.GlobalName) != global {
		t.Error("empty name and the global name should resolve to one sequence")
	}
	if manager.GetSequence("T1") == global {
		t.Error("a named sequence should be distinct from the global one")
	}
	if global.PatternCount() != sequence.DefaultPatternCount {
		t.Errorf("PatternCount = %d, want %d", global.PatternCount(), sequence.DefaultPatternCount)
	}
}

// TestPlayingFlagFollowsMessages tests the registry flag fan-out
func TestPlayingFlagFollowsMessages(t *testing.T) {
	manager, _ := newTestManager(t)
	theNote := manager.Registry().GetNote(60, 0)

	manager.HandleMidiMessage(0x90, 60, 100, 0)
	if !theNote.IsPlaying() {
		t.Error("note-on did not mark the note playing")
	}
	manager.HandleMidiMessage(0x80, 60, 0, 0)
	if theNote.IsPlaying() {
		t.Error("note-off did not clear the playing flag")
	}
}

// TestLiveRecordThroughEditLoop tests that live recording routed through
// the manager lands on the grid via the editing goroutine
func TestLiveRecordThroughEditLoop(t *testing.T) {
	manager, _ := newTestManager(t)
	p := manager.GetSequence("").ActivePatternObject()
	if err := p.SetNoteLength(3); err != nil {
		t.Fatal(err)
	}
	p.SetRecordLive(true)

	manager.HandleMidiMessage(0x90, 60, 100, 0)
	manager.HandleMidiMessage(0x80, 60, 0, 8)

	deadline := time.Now().Add(2 * time.Second)
	for p.SubnoteIndex(0, 0, 60) == -1 {
		if time.Now().After(deadline) {
			t.Fatal("recorded note never landed on the grid")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestPatternImageIDParsing tests the image id surface
func TestPatternImageIDParsing(t *testing.T) {
	manager, _ := newTestManager(t)
	if _, err := manager.PatternImage("Global/0/0", 64, 4); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}
	if _, err := manager.PatternImage("Global/0", 64, 4); err == nil {
		t.Error("two-part id accepted")
	}
	if _, err := manager.PatternImage("Global/x/0", 64, 4); err == nil {
		t.Error("non-numeric pattern index accepted")
	}
	if _, err := manager.PatternImage("Global/99/0", 64, 4); err == nil {
		t.Error("out-of-range pattern index accepted")
	}
}

// fakeRouter records routing calls
type fakeRouter struct {
	destinations map[int]transport.RouterDestination
	overrides    map[int]int
	zynthian     map[int][]int
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		destinations: make(map[int]transport.RouterDestination),
		overrides:    make(map[int]int),
		zynthian:     make(map[int][]int),
	}
}

func (f *fakeRouter) SetChannelDestination(channel int, destination transport.RouterDestination, overrideChannel int) {
	f.destinations[channel] = destination
	f.overrides[channel] = overrideChannel
}

func (f *fakeRouter) SetZynthianChannels(channel int, zynthianChannels []int) {
	f.zynthian[channel] = zynthianChannels
}

// TestRoutingFanOut tests that destination changes reach the router
func TestRoutingFanOut(t *testing.T) {
	trans := transport.NewManual()
	router := newFakeRouter()
	manager := NewManager(trans, router, nil)
	t.Cleanup(manager.Close)

	p := manager.GetSequence("").ActivePatternObject()
	p.SetChannelIndex(2)
	p.SetExternalMidiChannel(9)
	p.SetNoteDestination(pattern.SampleTriggerDestination)
	if router.destinations[2] != transport.SamplerDestination {
		t.Errorf("sampler destination not routed, got %v", router.destinations[2])
	}

	p.SetNoteDestination(pattern.ExternalDestination)
	if router.destinations[2] != transport.ExternalDestination || router.overrides[2] != 9 {
		t.Errorf("external destination not routed with override, got %v/%d",
			router.destinations[2], router.overrides[2])
	}

	p.SetNoteDestination(pattern.SynthDestination)
	if router.destinations[2] != transport.ZynthianDestination {
		t.Errorf("synth destination not routed, got %v", router.destinations[2])
	}
	if len(router.zynthian[2]) != 1 || router.zynthian[2][0] != p.MidiChannel() {
		t.Errorf("zynthian channels = %v, want [%d]", router.zynthian[2], p.MidiChannel())
	}
}

// TestPlayStopNote tests the immediate note scheduling helpers
func TestPlayStopNote(t *testing.T) {
	manager, trans := newTestManager(t)
	theNote := manager.Registry().GetNote(60, 2)

	manager.PlayNote(theNote, 100)
	if !theNote.IsPlaying() {
		t.Error("PlayNote did not mark the note playing")
	}
	buffers := trans.ScheduledBuffers()
	if len(buffers) != 1 {
		t.Fatalf("scheduled %d buffers, want 1", len(buffers))
	}
	raw := []byte(buffers[0].Buffer.Messages()[0])
	if raw[0] != 0x92 || raw[1] != 60 || raw[2] != 100 {
		t.Errorf("note-on = % X, want 92 3C 64", raw)
	}

	manager.StopNote(theNote)
	if theNote.IsPlaying() {
		t.Error("StopNote left the note playing")
	}

	// Control-channel notes are never scheduled.
	trans.Reset()
	manager.PlayNote(manager.Registry().GetNote(60, 15), 100)
	if len(trans.ScheduledBuffers()) != 0 {
		t.Error("a control-channel note was scheduled")
	}
}
