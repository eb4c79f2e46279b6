package pattern

import (
	"testing"

	"github.com/zynthbox/playgrid/note"
	"github.com/zynthbox/playgrid/transport"
)

func newTestPattern(t *testing.T) (*Pattern, *note.Registry, *transport.Manual) {
	t.Helper()
	registry := note.NewRegistry()
	trans := transport.NewManual()
	return New(registry, trans), registry, trans
}

// fakeSequence satisfies SequenceInfo for player tests
type fakeSequence struct {
	playing bool
	solo    int
	scene   int
}

func (f *fakeSequence) IsPlaying() bool        { return f.playing }
func (f *fakeSequence) ShouldMakeSounds() bool { return f.playing }
func (f *fakeSequence) SoloPatternIndex() int  { return f.solo }
func (f *fakeSequence) SceneIndex() int        { return f.scene }

// TestMetadataAlignment tests that the metadata list always matches the
// sub-note list
func TestMetadataAlignment(t *testing.T) {
	p, registry, _ := newTestPattern(t)

	if _, err := p.AddSubnote(0, 0, registry.GetNote(60, 0)); err != nil {
		t.Fatalf("AddSubnote: %v", err)
	}
	if _, err := p.AddSubnote(0, 0, registry.GetNote(64, 0)); err != nil {
		t.Fatalf("AddSubnote: %v", err)
	}
	theNote := p.Note(0, 0)
	metadata := p.Metadata(0, 0)
	if len(theNote.Subnotes()) != len(metadata) {
		t.Errorf("metadata length %d != sub-note count %d", len(metadata), len(theNote.Subnotes()))
	}

	if err := p.RemoveSubnote(0, 0, 0); err != nil {
		t.Fatalf("RemoveSubnote: %v", err)
	}
	if len(p.Note(0, 0).Subnotes()) != len(p.Metadata(0, 0)) {
		t.Error("metadata misaligned after RemoveSubnote")
	}

	// A mismatched SetCell is rejected wholesale.
	err := p.SetCell(1, 1, []*note.Note{registry.GetNote(60, 0)}, []map[string]int{{}, {}})
	if err == nil {
		t.Error("SetCell with mismatched metadata should fail")
	}
}

// TestAvailableBarsClamp tests clamping to bank length
func TestAvailableBarsClamp(t *testing.T) {
	p, _, _ := newTestPattern(t)
	p.SetAvailableBars(p.BankLength() + 1)
	if got := p.AvailableBars(); got != p.BankLength() {
		t.Errorf("AvailableBars = %d, want %d", got, p.BankLength())
	}
	p.SetAvailableBars(0)
	if got := p.AvailableBars(); got != 1 {
		t.Errorf("AvailableBars = %d, want 1", got)
	}
}

// TestWidthShrinkDropsTail tests that narrowing the grid drops tail cells
func TestWidthShrinkDropsTail(t *testing.T) {
	p, registry, _ := newTestPattern(t)
	if _, err := p.AddSubnote(0, 12, registry.GetNote(60, 0)); err != nil {
		t.Fatalf("AddSubnote: %v", err)
	}
	if _, err := p.AddSubnote(0, 3, registry.GetNote(62, 0)); err != nil {
		t.Fatalf("AddSubnote: %v", err)
	}
	if err := p.SetWidth(8); err != nil {
		t.Fatalf("SetWidth: %v", err)
	}
	if p.Note(0, 3) == nil {
		t.Error("cell inside the new width was lost")
	}
	if p.Width() != 8 {
		t.Errorf("Width = %d, want 8", p.Width())
	}
	if got := p.SubnoteIndex(0, 3, 62); got != 0 {
		t.Errorf("SubnoteIndex(0, 3, 62) = %d, want 0", got)
	}
}

// TestChannelNormalisation tests that foreign-channel sub-notes are
// remapped on insert, and the whole grid follows a channel change
func TestChannelNormalisation(t *testing.T) {
	p, registry, _ := newTestPattern(t)

	// A sub-note on channel 5 lands on the pattern's channel 0.
	if _, err := p.AddSubnote(0, 0, registry.GetNote(60, 5)); err != nil {
		t.Fatalf("AddSubnote: %v", err)
	}
	if got := p.Note(0, 0).Subnotes()[0].Channel(); got != 0 {
		t.Errorf("inserted sub-note channel = %d, want 0", got)
	}

	if _, err := p.AddSubnote(2, 3, registry.GetNote(64, 0)); err != nil {
		t.Fatalf("AddSubnote: %v", err)
	}
	if err := p.SetMidiChannel(7); err != nil {
		t.Fatalf("SetMidiChannel: %v", err)
	}
	for _, position := range [][2]int{{0, 0}, {2, 3}} {
		theNote := p.Note(position[0], position[1])
		for i, subnote := range theNote.Subnotes() {
			if subnote.Channel() != 7 {
				t.Errorf("sub-note %d at (%d, %d) channel = %d, want 7", i, position[0], position[1], subnote.Channel())
			}
		}
	}
}

// TestChannelChangeSilencesOldChannel tests the all-notes-off on channel
// change
func TestChannelChangeSilencesOldChannel(t *testing.T) {
	p, _, trans := newTestPattern(t)
	if err := p.SetMidiChannel(4); err != nil {
		t.Fatalf("SetMidiChannel: %v", err)
	}
	buffers := trans.ScheduledBuffers()
	if len(buffers) != 1 {
		t.Fatalf("scheduled %d buffers, want 1", len(buffers))
	}
	messages := buffers[0].Buffer.Messages()
	if len(messages) != 1 {
		t.Fatalf("buffer holds %d messages, want 1", len(messages))
	}
	raw := []byte(messages[0])
	if raw[0] != 0xB0 || raw[1] != 123 {
		t.Errorf("message = % X, want all-notes-off CC on channel 0", raw)
	}
}

// TestCacheInvalidation tests that mutating a cell drops the compiled
// buffers for it and the lookahead cells before it
func TestCacheInvalidation(t *testing.T) {
	p, registry, _ := newTestPattern(t)
	p.SetAvailableBars(2)

	// Warm the cache across several positions.
	for step := 0; step < 2*p.Width(); step++ {
		p.CompiledBuffers(step)
	}
	target := 5
	if !p.HasCompiledBuffers(target) {
		t.Fatal("cache was not warmed")
	}

	if _, err := p.AddSubnote(0, target, registry.GetNote(60, 0)); err != nil {
		t.Fatalf("AddSubnote: %v", err)
	}
	for back := 0; back <= DefaultLookahead; back++ {
		if p.HasCompiledBuffers(target - back) {
			t.Errorf("compiled buffers for step %d survived a mutation of step %d", target-back, target)
		}
	}
	if !p.HasCompiledBuffers(target + 1) {
		t.Error("mutation invalidated more than the lookahead window")
	}
}

// TestInsertSubnoteSorted tests the ascending insert
func TestInsertSubnoteSorted(t *testing.T) {
	p, registry, _ := newTestPattern(t)
	for _, midiNote := range []int{64, 60, 67} {
		if _, err := p.InsertSubnoteSorted(0, 0, registry.GetNote(midiNote, 0)); err != nil {
			t.Fatalf("InsertSubnoteSorted(%d): %v", midiNote, err)
		}
	}
	subnotes := p.Note(0, 0).Subnotes()
	want := []int{60, 64, 67}
	for i, subnote := range subnotes {
		if subnote.MidiNote() != want[i] {
			t.Errorf("subnote %d = %d, want %d", i, subnote.MidiNote(), want[i])
		}
	}
}

// TestInvalidPositionsRejected tests edit API boundary checks
func TestInvalidPositionsRejected(t *testing.T) {
	p, registry, _ := newTestPattern(t)
	if _, err := p.AddSubnote(-1, 0, registry.GetNote(60, 0)); err == nil {
		t.Error("negative row should be rejected")
	}
	if _, err := p.AddSubnote(0, p.Width(), registry.GetNote(60, 0)); err == nil {
		t.Error("column past the width should be rejected")
	}
	if err := p.RemoveSubnote(0, 0, 0); err == nil {
		t.Error("removing from an empty cell should be rejected")
	}
	if err := p.SetSubnoteMetadata(0, 0, 0, VelocityKey, 100); err == nil {
		t.Error("metadata on an empty cell should be rejected")
	}
}
