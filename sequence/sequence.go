// Package sequence groups patterns into a named, playable unit: one active
// pattern for editing, an optional soloed pattern, and a playback hookup
// that connects every pattern to the transport's tick stream.
package sequence

import (
	"fmt"
	"sync"

	"github.com/zynthbox/playgrid/note"
	"github.com/zynthbox/playgrid/pattern"
	"github.com/zynthbox/playgrid/transport"
)

// GlobalName denotes the session-global sequence.
const GlobalName = "Global"

// DefaultPatternCount is how many patterns a fresh sequence carries.
const DefaultPatternCount = 5

// Sequence is an ordered list of patterns.
type Sequence struct {
	mu        sync.RWMutex
	name      string
	version   int
	registry  *note.Registry
	transport transport.Transport

	patterns      []*pattern.Pattern
	activePattern int
	soloPattern   int
	sceneIndex    int
	bpm           int

	isPlaying     bool
	cancelAdvance func()
	cancelTick    func()

	// configure wires session-level collaborators into every pattern the
	// sequence creates or loads.
	configure func(*pattern.Pattern)
}

// New creates an empty sequence. The empty name maps to the session-global
// sequence.
func New(name string, registry *note.Registry, trans transport.Transport) *Sequence {
	if name == "" {
		name = GlobalName
	}
	return &Sequence{
		name:        name,
		version:     1,
		registry:    registry,
		transport:   trans,
		soloPattern: -1,
		bpm:         120,
	}
}

// Name returns the sequence's name.
func (s *Sequence) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetPatternConfigurator installs a hook run on every pattern the sequence
// creates or loads, so session-level wiring survives a reload.
func (s *Sequence) SetPatternConfigurator(configure func(*pattern.Pattern)) {
	s.mu.Lock()
	s.configure = configure
	s.mu.Unlock()
}

// CreatePattern appends a fresh pattern and returns it.
func (s *Sequence) CreatePattern() *pattern.Pattern {
	created := pattern.New(s.registry, s.transport)
	s.mu.Lock()
	created.AttachSequence(s, len(s.patterns))
	s.patterns = append(s.patterns, created)
	configure := s.configure
	s.mu.Unlock()
	if configure != nil {
		configure(created)
	}
	return created
}

// PatternCount returns the number of patterns.
func (s *Sequence) PatternCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// Get returns the pattern at index, or nil when out of range.
func (s *Sequence) Get(index int) *pattern.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.patterns) {
		return nil
	}
	return s.patterns[index]
}

// IndexOf returns a pattern's position in the sequence, or -1.
func (s *Sequence) IndexOf(target *pattern.Pattern) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, candidate := range s.patterns {
		if candidate == target {
			return i
		}
	}
	return -1
}

// ActivePattern returns the index of the pattern selected for editing.
func (s *Sequence) ActivePattern() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePattern
}

// ActivePatternObject returns the pattern selected for editing.
func (s *Sequence) ActivePatternObject() *pattern.Pattern {
	return s.Get(s.ActivePattern())
}

// SetActivePattern selects a pattern for editing. Live recording does not
// follow the user to another pattern; it switches off on the one left
// behind.
func (s *Sequence) SetActivePattern(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.patterns) {
		s.mu.Unlock()
		return fmt.Errorf("pattern index must be 0-%d, got %d", len(s.patterns)-1, index)
	}
	previous := s.activePattern
	s.activePattern = index
	var left *pattern.Pattern
	if previous != index && previous >= 0 && previous < len(s.patterns) {
		left = s.patterns[previous]
	}
	s.mu.Unlock()
	if left != nil && left.RecordLive() {
		left.SetRecordLive(false)
	}
	return nil
}

// SoloPatternIndex returns the soloed pattern's index, or -1.
func (s *Sequence) SoloPatternIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.soloPattern
}

// SetSoloPattern solos one pattern; -1 clears the solo.
func (s *Sequence) SetSoloPattern(index int) {
	s.mu.Lock()
	if index < -1 || index >= len(s.patterns) {
		s.mu.Unlock()
		return
	}
	s.soloPattern = index
	s.mu.Unlock()
}

// SceneIndex returns the track the sequence occupies in song mode.
func (s *Sequence) SceneIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sceneIndex
}

// SetSceneIndex sets the sequence's song-mode track.
func (s *Sequence) SetSceneIndex(index int) {
	s.mu.Lock()
	s.sceneIndex = index
	s.mu.Unlock()
}

// BPM returns the sequence's tempo.
func (s *Sequence) BPM() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bpm
}

// SetBPM sets the sequence's tempo.
func (s *Sequence) SetBPM(bpm int) error {
	if bpm < 20 || bpm > 300 {
		return fmt.Errorf("BPM must be 20-300, got %d", bpm)
	}
	s.mu.Lock()
	s.bpm = bpm
	s.mu.Unlock()
	return nil
}

// IsPlaying reports whether the sequence is hooked up to a running
// transport.
func (s *Sequence) IsPlaying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isPlaying
}

// ShouldMakeSounds reports whether patterns may emit right now.
func (s *Sequence) ShouldMakeSounds() bool {
	return s.IsPlaying()
}

// PrepareSequencePlayback connects every pattern's advancement and
// playhead callbacks to the transport. Idempotent.
func (s *Sequence) PrepareSequencePlayback() {
	s.mu.Lock()
	if s.isPlaying {
		s.mu.Unlock()
		return
	}
	s.isPlaying = true
	patterns := append([]*pattern.Pattern(nil), s.patterns...)
	s.cancelAdvance = s.transport.OnAdvance(func(position uint64, progressionLength int) {
		for _, p := range patterns {
			p.HandleSequenceAdvancement(position, progressionLength)
		}
	})
	s.cancelTick = s.transport.OnTick(func(position uint64) {
		for _, p := range patterns {
			p.UpdateSequencePosition(position)
		}
	})
	s.mu.Unlock()
}

// DisconnectSequencePlayback detaches the sequence from the transport so
// its patterns fall silent on the same tick, and resets per-pattern
// playback state.
func (s *Sequence) DisconnectSequencePlayback() {
	s.mu.Lock()
	if !s.isPlaying {
		s.mu.Unlock()
		return
	}
	s.isPlaying = false
	cancelAdvance, cancelTick := s.cancelAdvance, s.cancelTick
	s.cancelAdvance, s.cancelTick = nil, nil
	patterns := append([]*pattern.Pattern(nil), s.patterns...)
	s.mu.Unlock()
	if cancelAdvance != nil {
		cancelAdvance()
	}
	if cancelTick != nil {
		cancelTick()
	}
	for _, p := range patterns {
		p.HandleSequenceStop()
	}
}
