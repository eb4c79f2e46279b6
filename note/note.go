// Package note provides the session-wide registry of interned note
// identities. The registry is the sole creator and owner of Note values;
// everything else holds non-owning references, so two lookups of the same
// (midi note, channel) pair always yield the same pointer.
package note

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Note is a single interned note identity. An atomic note has a midi value
// in 0..127; a compound note carries an ordered list of atomic subnotes and
// an identity value of 128 or above.
type Note struct {
	name     string
	midiNote int
	channel  int
	subnotes []*Note

	// playing is transient state, never persisted.
	playing atomic.Bool
}

// Name returns the display name, e.g. "C#" for midi note 61.
func (n *Note) Name() string { return n.name }

// MidiNote returns the note value; 128 and above marks a compound note.
func (n *Note) MidiNote() int { return n.midiNote }

// Octave returns the octave of an atomic note, where midi note 60 is in
// octave 5 of the 0-based ladder the grid front-ends use.
func (n *Note) Octave() int { return n.midiNote / 12 }

// Channel returns the midi channel the note plays on.
func (n *Note) Channel() int { return n.channel }

// Subnotes returns the ordered subnotes of a compound note, or nil.
func (n *Note) Subnotes() []*Note { return n.subnotes }

// IsCompound reports whether the note is a compound of subnotes.
func (n *Note) IsCompound() bool { return n.midiNote >= 128 }

// IsPlaying reports the transient playing flag.
func (n *Note) IsPlaying() bool { return n.playing.Load() }

// SetIsPlaying updates the transient playing flag.
func (n *Note) SetIsPlaying(playing bool) { n.playing.Store(playing) }

func (n *Note) String() string {
	if n.IsCompound() {
		return fmt.Sprintf("compound(%d notes)", len(n.subnotes))
	}
	return fmt.Sprintf("%s%d/ch%d", n.name, n.Octave(), n.channel)
}

type atomicKey struct {
	midiNote int
	channel  int
}

// Registry interns notes for the lifetime of the session.
type Registry struct {
	mu        sync.Mutex
	atomics   map[atomicKey]*Note
	compounds map[uint64]*Note
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		atomics:   make(map[atomicKey]*Note),
		compounds: make(map[uint64]*Note),
	}
}

// GetNote returns the interned note for (midiNote, channel), creating it on
// first request. Out-of-range values yield nil.
func (r *Registry) GetNote(midiNote, channel int) *Note {
	if midiNote < 0 || midiNote > 127 || channel < 0 || channel > 15 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := atomicKey{midiNote, channel}
	if existing, ok := r.atomics[key]; ok {
		return existing
	}
	created := &Note{
		name:     noteNames[midiNote%12],
		midiNote: midiNote,
		channel:  channel,
	}
	r.atomics[key] = created
	return created
}

// GetCompoundNote returns the interned compound identity for the given
// ordered subnotes. The identity is content-addressed over the subnotes'
// (note, channel) pairs, so the same list always resolves to the same
// compound. Nil or empty input, or any nil subnote, yields nil.
func (r *Registry) GetCompoundNote(subnotes []*Note) *Note {
	if len(subnotes) == 0 {
		return nil
	}
	hasher := fnv.New64a()
	for _, subnote := range subnotes {
		if subnote == nil {
			return nil
		}
		hasher.Write([]byte{byte(subnote.midiNote), byte(subnote.channel)})
	}
	key := hasher.Sum64()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.compounds[key]; ok {
		return existing
	}
	created := &Note{
		// Compounds live above the atomic midi range.
		midiNote: 128 + int(key%1024),
		subnotes: append([]*Note(nil), subnotes...),
	}
	r.compounds[key] = created
	return created
}

// OnChannel returns the equivalent of an atomic note on another channel.
// Compound notes are rebuilt member-wise.
func (r *Registry) OnChannel(n *Note, channel int) *Note {
	if n == nil {
		return nil
	}
	if n.IsCompound() {
		remapped := make([]*Note, 0, len(n.subnotes))
		for _, subnote := range n.subnotes {
			remapped = append(remapped, r.GetNote(subnote.midiNote, channel))
		}
		return r.GetCompoundNote(remapped)
	}
	return r.GetNote(n.midiNote, channel)
}
