// Package playgrid ties the sequencer core together: one session-wide note
// registry, the named sequences, the song scheduler, the session recorder,
// and the fan-out of observed MIDI messages to all of them. Grid mutations
// triggered from the realtime paths are funnelled onto a single editing
// goroutine owned by the manager.
package playgrid

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/zynthbox/playgrid/midiin"
	"github.com/zynthbox/playgrid/note"
	"github.com/zynthbox/playgrid/pattern"
	"github.com/zynthbox/playgrid/recorder"
	"github.com/zynthbox/playgrid/sequence"
	"github.com/zynthbox/playgrid/song"
	"github.com/zynthbox/playgrid/transport"
)

// Manager is the session root.
type Manager struct {
	mu        sync.Mutex
	registry  *note.Registry
	transport transport.Transport
	router    transport.Router
	clips     transport.ClipResolver

	sequences map[string]*sequence.Sequence
	scheduler *song.Scheduler
	recorder  *recorder.Recorder

	currentMidiChannel int

	edits chan func()
	done  chan struct{}
}

// NewManager creates the session. A nil transport degrades to the silent
// one, keeping the core alive as an editor.
func NewManager(trans transport.Transport, router transport.Router, clips transport.ClipResolver) *Manager {
	if trans == nil {
		trans = transport.Silent()
	}
	m := &Manager{
		registry:           note.NewRegistry(),
		transport:          trans,
		router:             router,
		clips:              clips,
		sequences:          make(map[string]*sequence.Sequence),
		currentMidiChannel: -1,
		edits:              make(chan func(), 256),
		done:               make(chan struct{}),
	}
	m.scheduler = song.NewScheduler(trans, clips)
	m.recorder = recorder.New(trans, m.registry)
	go m.editLoop()
	return m
}

// editLoop is the manager's editing goroutine: grid writes queued from the
// realtime paths run here, serialised.
func (m *Manager) editLoop() {
	for {
		select {
		case <-m.done:
			return
		case edit := <-m.edits:
			edit()
		}
	}
}

// Close stops the editing goroutine.
func (m *Manager) Close() {
	close(m.done)
}

// Registry returns the session's note registry.
func (m *Manager) Registry() *note.Registry {
	return m.registry
}

// Transport returns the transport the session drives.
func (m *Manager) Transport() transport.Transport {
	return m.transport
}

// Scheduler returns the song scheduler.
func (m *Manager) Scheduler() *song.Scheduler {
	return m.scheduler
}

// Recorder returns the session recorder.
func (m *Manager) Recorder() *recorder.Recorder {
	return m.recorder
}

// GetSequence returns the sequence with the given name, creating it with a
// default set of patterns on first request. The empty name denotes the
// session-global sequence.
func (m *Manager) GetSequence(name string) *sequence.Sequence {
	if name == "" {
		name = sequence.GlobalName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sequences[name]; ok {
		return existing
	}
	created := sequence.New(name, m.registry, m.transport)
	created.SetPatternConfigurator(func(p *pattern.Pattern) {
		p.AttachSong(m.scheduler)
		p.AttachClips(m.clips)
		p.SetCurrentMidiChannelFunc(m.CurrentMidiChannel)
		p.SetRecordedSink(m.queueEdit)
		p.Observe(func(event pattern.Event, _, _ int) {
			if event == pattern.SettingsChanged {
				m.applyRouting(p)
			}
		})
	})
	for i := 0; i < sequence.DefaultPatternCount; i++ {
		p := created.CreatePattern()
		p.SetPartIndex(i)
	}
	m.sequences[name] = created
	playbacks := make([]song.Playback, 0, len(m.sequences))
	for _, s := range m.sequences {
		playbacks = append(playbacks, s)
	}
	m.scheduler.AttachSequences(playbacks)
	return created
}

// Sequences returns the known sequences in no particular order.
func (m *Manager) Sequences() []*sequence.Sequence {
	m.mu.Lock()
	defer m.mu.Unlock()
	sequences := make([]*sequence.Sequence, 0, len(m.sequences))
	for _, s := range m.sequences {
		sequences = append(sequences, s)
	}
	return sequences
}

func (m *Manager) queueEdit(apply pattern.ApplyRecordedNote) {
	select {
	case m.edits <- func() { apply() }:
	case <-m.done:
	}
}

// applyRouting pushes a pattern's destination settings out to the router.
func (m *Manager) applyRouting(p *pattern.Pattern) {
	if m.router == nil {
		return
	}
	switch p.NoteDestination() {
	case pattern.ExternalDestination:
		m.router.SetChannelDestination(p.ChannelIndex(), transport.ExternalDestination, p.ExternalMidiChannel())
	case pattern.SampleTriggerDestination, pattern.SampleSlicedDestination, pattern.SampleLoopedDestination:
		m.router.SetChannelDestination(p.ChannelIndex(), transport.SamplerDestination, -1)
	default:
		m.router.SetChannelDestination(p.ChannelIndex(), transport.ZynthianDestination, -1)
		m.router.SetZynthianChannels(p.ChannelIndex(), []int{p.MidiChannel()})
	}
}

// CurrentMidiChannel returns the session's active channel, or -1.
func (m *Manager) CurrentMidiChannel() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentMidiChannel
}

// SetCurrentMidiChannel changes the session's active channel. Patterns on
// the control channel compile against it, so their caches are dropped.
func (m *Manager) SetCurrentMidiChannel(channel int) {
	if channel < -1 || channel > 15 {
		return
	}
	m.mu.Lock()
	m.currentMidiChannel = channel
	sequences := make([]*sequence.Sequence, 0, len(m.sequences))
	for _, s := range m.sequences {
		sequences = append(sequences, s)
	}
	m.mu.Unlock()
	for _, s := range sequences {
		for i := 0; i < s.PatternCount(); i++ {
			if p := s.Get(i); p != nil && p.MidiChannel() == pattern.ControlChannel {
				p.InvalidateCompiled()
			}
		}
	}
}

// AttachListener fans the intake's messages out to the recorder and to
// every pattern.
func (m *Manager) AttachListener(listener *midiin.Listener) {
	listener.Subscribe(func(message midiin.Message) {
		m.HandleMidiMessage(message.Byte1, message.Byte2, message.Byte3, message.Timestamp)
	})
}

// HandleMidiMessage distributes one observed message to the session
// recorder and every pattern in the session.
func (m *Manager) HandleMidiMessage(byte1, byte2, byte3 byte, timestamp float64) {
	m.recorder.HandleMidiMessage(byte1, byte2, byte3)
	m.mu.Lock()
	sequences := make([]*sequence.Sequence, 0, len(m.sequences))
	for _, s := range m.sequences {
		sequences = append(sequences, s)
	}
	m.mu.Unlock()
	for _, s := range sequences {
		for i := 0; i < s.PatternCount(); i++ {
			if p := s.Get(i); p != nil {
				p.HandleMidiMessage(byte1, byte2, byte3, timestamp)
			}
		}
	}
	// Keep the registry's transient playing flags in sync with what is
	// audible.
	if byte1 >= 0x80 && byte1 < 0xA0 {
		channel := int(byte1 & 0x0F)
		if theNote := m.registry.GetNote(int(byte2), channel); theNote != nil {
			theNote.SetIsPlaying(byte1 >= 0x90 && byte3 > 0)
		}
	}
}

// PlayNote schedules an immediate note-on for a registry note.
func (m *Manager) PlayNote(theNote *note.Note, velocity int) {
	m.setNoteState(theNote, velocity, true)
}

// StopNote schedules an immediate note-off for a registry note.
func (m *Manager) StopNote(theNote *note.Note) {
	m.setNoteState(theNote, 0, false)
}

func (m *Manager) setNoteState(theNote *note.Note, velocity int, on bool) {
	if theNote == nil {
		return
	}
	if theNote.IsCompound() {
		for _, subnote := range theNote.Subnotes() {
			m.setNoteState(subnote, velocity, on)
		}
		return
	}
	if theNote.Channel() == pattern.ControlChannel {
		return
	}
	buffer := transport.NewMidiBuffer()
	if on {
		buffer.Add(midi.NoteOn(uint8(theNote.Channel()), uint8(theNote.MidiNote()), uint8(velocity)))
	} else {
		buffer.Add(midi.NoteOff(uint8(theNote.Channel()), uint8(theNote.MidiNote())))
	}
	m.transport.ScheduleMidiBuffer(buffer, 0)
	theNote.SetIsPlaying(on)
}

// StartMetronome starts the transport at the global sequence's tempo.
func (m *Manager) StartMetronome() {
	m.transport.Start(m.GetSequence(sequence.GlobalName).BPM())
}

// StopMetronome halts the transport.
func (m *Manager) StopMetronome() {
	m.transport.Stop()
}

// PatternImage renders the thumbnail strip addressed by a
// {sequence}/{patternIndex}/{bank} id (the path of an image://pattern/
// address, without that prefix), scaled to the requested size.
func (m *Manager) PatternImage(id string, width, height int) (image.Image, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("pattern image id must be sequence/pattern/bank, got %q", id)
	}
	patternIndex, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid pattern index %q", parts[1])
	}
	bank, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid bank index %q", parts[2])
	}
	target := m.GetSequence(parts[0]).Get(patternIndex)
	if target == nil {
		return nil, fmt.Errorf("no pattern %d in sequence %q", patternIndex, parts[0])
	}
	return target.Thumbnail(bank, width, height), nil
}
