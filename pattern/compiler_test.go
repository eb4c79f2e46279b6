package pattern

import (
	"testing"
)

// TestStepDurationLadder tests the note-length divisor ladder
func TestStepDurationLadder(t *testing.T) {
	tests := []struct {
		noteLength int
		want       int
	}{
		{1, 32}, {2, 16}, {3, 8}, {4, 4}, {5, 2}, {6, 1}, {0, 0}, {7, 0},
	}
	for _, tt := range tests {
		if got := stepDurationFor(tt.noteLength); got != tt.want {
			t.Errorf("stepDurationFor(%d) = %d, want %d", tt.noteLength, got, tt.want)
		}
	}
}

// TestStepPositionRelevance tests the relevance/division rule
func TestStepPositionRelevance(t *testing.T) {
	tests := []struct {
		name       string
		noteLength int
		position   uint64
		relevant   bool
		stepIndex  uint64
	}{
		{"OnBeat", 3, 0, true, 0},
		{"OnStep", 3, 16, true, 2},
		{"OffStep", 3, 3, false, 0},
		{"EverySubStep", 6, 7, true, 7},
		{"HalfSpeed", 2, 16, true, 1},
		{"HalfSpeedOff", 2, 8, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stepIndex, _, relevant := stepPosition(tt.noteLength, tt.position)
			if relevant != tt.relevant {
				t.Fatalf("relevant = %v, want %v", relevant, tt.relevant)
			}
			if relevant && stepIndex != tt.stepIndex {
				t.Errorf("stepIndex = %d, want %d", stepIndex, tt.stepIndex)
			}
		})
	}
}

// TestStepEmitsOnBeat tests the basic compile: one sub-note with default
// metadata yields a note-on at offset 0 and a note-off at the step length
func TestStepEmitsOnBeat(t *testing.T) {
	p, registry, _ := newTestPattern(t)
	if err := p.SetNoteLength(3); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AddSubnote(0, 0, registry.GetNote(60, 0)); err != nil {
		t.Fatal(err)
	}

	buffers := p.CompiledBuffers(0)
	on, ok := buffers[0]
	if !ok || on.Len() != 1 {
		t.Fatalf("no note-on buffer at offset 0: %v", buffers)
	}
	onBytes := []byte(on.Messages()[0])
	if onBytes[0] != 0x90 || onBytes[1] != 60 || onBytes[2] != 64 {
		t.Errorf("note-on = % X, want 90 3C 40", onBytes)
	}
	off, ok := buffers[8]
	if !ok || off.Len() != 1 {
		t.Fatalf("no note-off buffer at offset 8: %v", buffers)
	}
	offBytes := []byte(off.Messages()[0])
	if offBytes[0]&0xF0 != 0x80 || offBytes[1] != 60 {
		t.Errorf("note-off = % X, want status 80 note 3C", offBytes)
	}
}

// TestNegativeDelayLookahead tests that a negative-delay sub-note in the
// following cell fires from the preceding step's compiled buffer
func TestNegativeDelayLookahead(t *testing.T) {
	p, registry, _ := newTestPattern(t)
	if err := p.SetNoteLength(3); err != nil {
		t.Fatal(err)
	}
	index, err := p.AddSubnote(0, 1, registry.GetNote(62, 0))
	if err != nil {
		t.Fatal(err)
	}
	p.SetSubnoteMetadata(0, 1, index, DelayKey, -2)
	p.SetSubnoteMetadata(0, 1, index, DurationKey, 4)

	buffers := p.CompiledBuffers(0)
	// Step duration 8, one cell ahead: the note-on lands at 8 - 2 = 6.
	on, ok := buffers[6]
	if !ok || on.Len() != 1 {
		t.Fatalf("no early note-on at offset 6, buffers: %v", buffers)
	}
	onBytes := []byte(on.Messages()[0])
	if onBytes[0] != 0x90 || onBytes[1] != 62 {
		t.Errorf("early note-on = % X, want 90 3E ..", onBytes)
	}
	off, ok := buffers[10]
	if !ok || off.Len() != 1 {
		t.Fatalf("no matching note-off at offset 10 (8 - 2 delay + 4 duration)")
	}

	// A positive-delay note in the lookahead cell must not leak into the
	// preceding step.
	p.SetSubnoteMetadata(0, 1, index, DelayKey, 2)
	buffers = p.CompiledBuffers(0)
	if _, ok := buffers[10]; ok {
		t.Error("positive-delay sub-note leaked into the preceding step's buffers")
	}
}

// TestMetadataVelocityAndDuration tests explicit metadata compilation
func TestMetadataVelocityAndDuration(t *testing.T) {
	p, registry, _ := newTestPattern(t)
	index, err := p.AddSubnote(0, 0, registry.GetNote(60, 0))
	if err != nil {
		t.Fatal(err)
	}
	p.SetSubnoteMetadata(0, 0, index, VelocityKey, 100)
	p.SetSubnoteMetadata(0, 0, index, DelayKey, 1)
	p.SetSubnoteMetadata(0, 0, index, DurationKey, 3)

	buffers := p.CompiledBuffers(0)
	on, ok := buffers[1]
	if !ok {
		t.Fatalf("no note-on at delay offset 1")
	}
	onBytes := []byte(on.Messages()[0])
	if onBytes[2] != 100 {
		t.Errorf("velocity = %d, want 100", onBytes[2])
	}
	if _, ok := buffers[4]; !ok {
		t.Error("no note-off at delay + duration = 4")
	}

	// Duration 0 means "use the step length".
	p.SetSubnoteMetadata(0, 0, index, DurationKey, 0)
	p.SetSubnoteMetadata(0, 0, index, DelayKey, 0)
	buffers = p.CompiledBuffers(0)
	if _, ok := buffers[8]; !ok {
		t.Error("zero duration did not fall back to the step length")
	}
}

// TestNoNotesOnControlChannel tests that channel 15 never emits, and that
// a control-channel pattern borrows the session channel when available
func TestNoNotesOnControlChannel(t *testing.T) {
	p, registry, _ := newTestPattern(t)
	if err := p.SetMidiChannel(ControlChannel); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AddSubnote(0, 0, registry.GetNote(60, ControlChannel)); err != nil {
		t.Fatal(err)
	}

	// No session channel: nothing may be emitted.
	buffers := p.CompiledBuffers(0)
	for offset, buffer := range buffers {
		if buffer.Len() != 0 {
			t.Errorf("control-channel pattern emitted %d messages at offset %d", buffer.Len(), offset)
		}
	}

	// Session channel 3: everything emits there instead.
	p.SetCurrentMidiChannelFunc(func() int { return 3 })
	p.InvalidateCompiled()
	buffers = p.CompiledBuffers(0)
	found := false
	for _, buffer := range buffers {
		for _, message := range buffer.Messages() {
			raw := []byte(message)
			found = true
			if raw[0]&0x0F != 3 {
				t.Errorf("message % X emitted on channel %d, want 3", raw, raw[0]&0x0F)
			}
			if raw[0]&0x0F == 15 {
				t.Errorf("message emitted on the control channel")
			}
		}
	}
	if !found {
		t.Error("no messages emitted despite a valid session channel")
	}
}

// TestPlayerGatingOnControlChannel tests scenario: a channel-15 pattern
// only schedules while the session channel is valid
func TestPlayerGatingOnControlChannel(t *testing.T) {
	p, registry, trans := newTestPattern(t)
	seq := &fakeSequence{playing: true, solo: -1}
	p.AttachSequence(seq, 0)
	if err := p.SetMidiChannel(ControlChannel); err != nil {
		t.Fatal(err)
	}
	trans.Reset() // discard the channel-change all-notes-off
	if _, err := p.AddSubnote(0, 0, registry.GetNote(60, ControlChannel)); err != nil {
		t.Fatal(err)
	}

	current := 3
	p.SetCurrentMidiChannelFunc(func() int { return current })
	p.HandleSequenceAdvancement(0, 0)
	if len(trans.ScheduledBuffers()) == 0 {
		t.Fatal("no buffers scheduled with a valid session channel")
	}
	for _, scheduled := range trans.ScheduledBuffers() {
		for _, message := range scheduled.Buffer.Messages() {
			raw := []byte(message)
			if raw[0]&0x0F != 3 {
				t.Errorf("scheduled message % X not on channel 3", raw)
			}
		}
	}

	// Session channel withdrawn: the pattern falls silent.
	current = -1
	p.InvalidateCompiled()
	trans.Reset()
	p.HandleSequenceAdvancement(0, 0)
	if got := len(trans.ScheduledBuffers()); got != 0 {
		t.Errorf("scheduled %d buffers with no session channel, want 0", got)
	}
}

// TestPlayerGatingEnabledSolo tests the enabled/solo gate outside song mode
func TestPlayerGatingEnabledSolo(t *testing.T) {
	p, registry, trans := newTestPattern(t)
	seq := &fakeSequence{playing: true, solo: -1}
	p.AttachSequence(seq, 1)
	if _, err := p.AddSubnote(0, 0, registry.GetNote(60, 0)); err != nil {
		t.Fatal(err)
	}

	p.HandleSequenceAdvancement(0, 0)
	if len(trans.ScheduledBuffers()) == 0 {
		t.Error("enabled pattern in a playing sequence did not schedule")
	}

	trans.Reset()
	p.SetEnabled(false)
	p.HandleSequenceAdvancement(0, 0)
	if len(trans.ScheduledBuffers()) != 0 {
		t.Error("disabled pattern scheduled buffers")
	}

	// Soloing this pattern overrides enabled.
	trans.Reset()
	seq.solo = 1
	p.HandleSequenceAdvancement(0, 0)
	if len(trans.ScheduledBuffers()) == 0 {
		t.Error("soloed pattern did not schedule")
	}

	// Soloing another pattern silences this one.
	trans.Reset()
	seq.solo = 0
	p.SetEnabled(true)
	p.HandleSequenceAdvancement(0, 0)
	if len(trans.ScheduledBuffers()) != 0 {
		t.Error("pattern scheduled while another was soloed")
	}
}

// TestPlayheadTracking tests UpdateSequencePosition row/column maths
func TestPlayheadTracking(t *testing.T) {
	p, _, _ := newTestPattern(t)
	seq := &fakeSequence{playing: true, solo: -1}
	p.AttachSequence(seq, 0)
	p.SetAvailableBars(2)
	if err := p.SetNoteLength(3); err != nil {
		t.Fatal(err)
	}

	// Position 8 sub-steps in = step 1 = row 0, column 1.
	p.UpdateSequencePosition(8)
	if p.PlayingRow() != 0 || p.PlayingColumn() != 1 {
		t.Errorf("playhead = (%d, %d), want (0, 1)", p.PlayingRow(), p.PlayingColumn())
	}

	// Step 16 wraps into the second bar.
	p.UpdateSequencePosition(16 * 8)
	if p.PlayingRow() != 1 || p.PlayingColumn() != 0 {
		t.Errorf("playhead = (%d, %d), want (1, 0)", p.PlayingRow(), p.PlayingColumn())
	}

	p.HandleSequenceStop()
	if p.PlayingRow() != -1 || p.PlayingColumn() != -1 {
		t.Error("playhead not reset on stop")
	}
}
