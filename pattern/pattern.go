// Package pattern implements the quantised note grid at the heart of the
// sequencer: a rectangular arrangement of cells whose sub-notes carry
// per-note velocity, micro-timing delay and duration, compiled on demand
// into pre-scheduled MIDI buffers and advanced against the transport's
// sub-step stream.
package pattern

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zynthbox/playgrid/note"
	"github.com/zynthbox/playgrid/transport"
)

// Destination selects where a pattern's notes end up.
type Destination int

const (
	SynthDestination Destination = iota
	SampleTriggerDestination
	SampleSlicedDestination
	SampleLoopedDestination
	ExternalDestination
)

// Metadata keys recognised on sub-note metadata entries.
const (
	VelocityKey = "velocity"
	DelayKey    = "delay"
	DurationKey = "duration"
)

const (
	// DefaultWidth is the number of steps in a bar.
	DefaultWidth = 16
	// DefaultHeight is the number of rows in the full grid.
	DefaultHeight = 16
	// DefaultBankLength is the number of rows exposed per bank.
	DefaultBankLength = 8
	// DefaultLookahead is how many cells ahead the compiler scans for
	// negative-delay sub-notes.
	DefaultLookahead = 2
	// DefaultRecordTolerance is the fraction of a step within which live
	// recorded notes snap to the step boundary.
	DefaultRecordTolerance = 0.3
	// ControlChannel never emits notes; patterns on it borrow the session's
	// current channel instead.
	ControlChannel = 15

	defaultVelocity = 64
)

var bankNames = []string{"A", "B", "C", "D", "E", "F", "G", "H"}

// Event identifies what changed when an observer fires.
type Event int

const (
	// CellsChanged means one cell's sub-notes or metadata changed; the
	// observer receives its row and column.
	CellsChanged Event = iota
	// StructureChanged means the grid dimensions or bank window changed.
	StructureChanged
	// SettingsChanged means a playback-affecting property changed.
	SettingsChanged
	// PlayheadChanged means playingRow/playingColumn moved.
	PlayheadChanged
)

// Observer receives change notifications after each mutation. Observers are
// invoked on the mutating goroutine, outside the pattern's lock.
type Observer func(event Event, row, column int)

// SequenceInfo is what a pattern needs to know about its owning sequence.
type SequenceInfo interface {
	IsPlaying() bool
	ShouldMakeSounds() bool
	// SoloPatternIndex returns the soloed pattern index, or -1.
	SoloPatternIndex() int
	// SceneIndex is the track the sequence belongs to in song mode.
	SceneIndex() int
}

// SongInfo is the playfield view the pattern consults in song mode.
type SongInfo interface {
	SongMode() bool
	PartActive(channel, track, part int) bool
	PartOffset(channel, track, part int) uint64
}

type cell struct {
	note     *note.Note
	metadata []map[string]int
}

// Pattern is a single playable note grid. All mutation goes through the
// editing API below; the player methods are driven by the transport's tick
// goroutine and share the same mutex with the compiled-buffer cache.
type Pattern struct {
	mu        sync.Mutex
	registry  *note.Registry
	transport transport.Transport
	clips     transport.ClipResolver

	sequence SequenceInfo
	song     SongInfo
	index    int

	// currentMidiChannel resolves the session's active channel, used when
	// the pattern sits on the control channel. Returns -1 when unset.
	currentMidiChannel func() int

	cells  []cell
	width  int
	height int

	availableBars int
	activeBar     int
	bankOffset    int
	bankLength    int

	noteLength          int
	defaultNoteDuration int
	midiChannel         int
	externalMidiChannel int
	destination         Destination
	channelIndex        int
	partIndex           int
	enabled             bool
	muted               bool
	clipIDs             []int

	playingRow    int
	playingColumn int

	lookahead int
	compiled  map[int]map[int]*transport.MidiBuffer

	recordLive      bool
	recordTolerance float64
	notePool        []*recordedNote
	pendingNotes    []*recordedNote
	recordedSink    func(*recordedNote)
	droppedRecords  uint64

	observers []Observer
}

// New creates an empty pattern with default dimensions. The registry owns
// all note identities the pattern references; the transport receives the
// compiled buffers.
func New(registry *note.Registry, trans transport.Transport) *Pattern {
	p := &Pattern{
		registry:            registry,
		transport:           trans,
		width:               DefaultWidth,
		height:              DefaultHeight,
		availableBars:       1,
		bankLength:          DefaultBankLength,
		noteLength:          3,
		externalMidiChannel: -1,
		enabled:             true,
		playingRow:          -1,
		playingColumn:       -1,
		lookahead:           DefaultLookahead,
		compiled:            make(map[int]map[int]*transport.MidiBuffer),
		recordTolerance:     DefaultRecordTolerance,
		currentMidiChannel:  func() int { return -1 },
	}
	p.cells = make([]cell, p.width*p.height)
	p.recordedSink = p.applyRecordedNote
	p.fillNotePool()
	return p
}

// AttachSequence wires the pattern to its owning sequence, at the given
// index within it.
func (p *Pattern) AttachSequence(sequence SequenceInfo, index int) {
	p.mu.Lock()
	p.sequence = sequence
	p.index = index
	p.mu.Unlock()
}

// AttachSong wires the pattern to the song scheduler's playfield view.
func (p *Pattern) AttachSong(song SongInfo) {
	p.mu.Lock()
	p.song = song
	p.mu.Unlock()
}

// AttachClips wires the sampler clip resolver used for sample dispatch.
func (p *Pattern) AttachClips(clips transport.ClipResolver) {
	p.mu.Lock()
	p.clips = clips
	p.mu.Unlock()
}

// SetCurrentMidiChannelFunc installs the session-channel resolver used by
// control-channel patterns.
func (p *Pattern) SetCurrentMidiChannelFunc(resolve func() int) {
	p.mu.Lock()
	if resolve == nil {
		resolve = func() int { return -1 }
	}
	p.currentMidiChannel = resolve
	p.mu.Unlock()
}

// Observe registers a change observer.
func (p *Pattern) Observe(observer Observer) {
	p.mu.Lock()
	p.observers = append(p.observers, observer)
	p.mu.Unlock()
}

func (p *Pattern) notify(event Event, row, column int) {
	p.mu.Lock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()
	for _, observer := range observers {
		observer(event, row, column)
	}
}

func (p *Pattern) cellIndex(row, column int) (int, error) {
	if row < 0 || row >= p.height {
		return 0, fmt.Errorf("row must be 0-%d, got %d", p.height-1, row)
	}
	if column < 0 || column >= p.width {
		return 0, fmt.Errorf("column must be 0-%d, got %d", p.width-1, column)
	}
	return row*p.width + column, nil
}

// Note returns the compound note at a cell, or nil for an empty cell.
func (p *Pattern) Note(row, column int) *note.Note {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		return nil
	}
	return p.cells[index].note
}

// Metadata returns a copy of the cell's sub-note metadata list.
func (p *Pattern) Metadata(row, column int) []map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		return nil
	}
	metadata := make([]map[string]int, 0, len(p.cells[index].metadata))
	for _, entry := range p.cells[index].metadata {
		copied := make(map[string]int, len(entry))
		for key, value := range entry {
			copied[key] = value
		}
		metadata = append(metadata, copied)
	}
	return metadata
}

// normaliseChannel replaces a sub-note on a foreign channel with the
// equivalent note on the pattern's channel.
func (p *Pattern) normaliseChannel(subnote *note.Note) *note.Note {
	if subnote == nil || subnote.Channel() == p.midiChannel {
		return subnote
	}
	return p.registry.OnChannel(subnote, p.midiChannel)
}

func (p *Pattern) rebuildCellNote(index int, subnotes []*note.Note) {
	if len(subnotes) == 0 {
		p.cells[index].note = nil
		return
	}
	p.cells[index].note = p.registry.GetCompoundNote(subnotes)
}

// AddSubnote appends a sub-note to a cell and returns its index. The
// sub-note is remapped onto the pattern's channel if needed, and an empty
// metadata entry keeps the metadata list aligned.
func (p *Pattern) AddSubnote(row, column int, subnote *note.Note) (int, error) {
	p.mu.Lock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		p.mu.Unlock()
		return -1, err
	}
	if subnote == nil {
		p.mu.Unlock()
		return -1, fmt.Errorf("cannot add a nil sub-note")
	}
	subnotes := append(p.subnotesAt(index), p.normaliseChannel(subnote))
	p.cells[index].metadata = append(p.cells[index].metadata, map[string]int{})
	p.rebuildCellNote(index, subnotes)
	p.invalidateCell(row, column)
	p.mu.Unlock()
	p.notify(CellsChanged, row, column)
	return len(subnotes) - 1, nil
}

// InsertSubnote inserts a sub-note at a specific position within a cell.
func (p *Pattern) InsertSubnote(row, column, position int, subnote *note.Note) error {
	p.mu.Lock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if subnote == nil {
		p.mu.Unlock()
		return fmt.Errorf("cannot insert a nil sub-note")
	}
	subnotes := p.subnotesAt(index)
	if position < 0 || position > len(subnotes) {
		p.mu.Unlock()
		return fmt.Errorf("sub-note position must be 0-%d, got %d", len(subnotes), position)
	}
	subnotes = append(subnotes[:position], append([]*note.Note{p.normaliseChannel(subnote)}, subnotes[position:]...)...)
	metadata := p.cells[index].metadata
	metadata = append(metadata[:position], append([]map[string]int{{}}, metadata[position:]...)...)
	p.cells[index].metadata = metadata
	p.rebuildCellNote(index, subnotes)
	p.invalidateCell(row, column)
	p.mu.Unlock()
	p.notify(CellsChanged, row, column)
	return nil
}

// InsertSubnoteSorted inserts a sub-note keeping the cell's sub-notes
// sorted ascending by midi note, and returns the position it landed at.
func (p *Pattern) InsertSubnoteSorted(row, column int, subnote *note.Note) (int, error) {
	p.mu.Lock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		p.mu.Unlock()
		return -1, err
	}
	if subnote == nil {
		p.mu.Unlock()
		return -1, fmt.Errorf("cannot insert a nil sub-note")
	}
	subnotes := p.subnotesAt(index)
	position := sort.Search(len(subnotes), func(i int) bool {
		return subnotes[i].MidiNote() >= subnote.MidiNote()
	})
	p.mu.Unlock()
	if err := p.InsertSubnote(row, column, position, subnote); err != nil {
		return -1, err
	}
	return position, nil
}

// RemoveSubnote removes the sub-note at the given position within a cell.
func (p *Pattern) RemoveSubnote(row, column, position int) error {
	p.mu.Lock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	subnotes := p.subnotesAt(index)
	if position < 0 || position >= len(subnotes) {
		p.mu.Unlock()
		return fmt.Errorf("sub-note position must be 0-%d, got %d", len(subnotes)-1, position)
	}
	subnotes = append(subnotes[:position], subnotes[position+1:]...)
	p.cells[index].metadata = append(p.cells[index].metadata[:position], p.cells[index].metadata[position+1:]...)
	p.rebuildCellNote(index, subnotes)
	p.invalidateCell(row, column)
	p.mu.Unlock()
	p.notify(CellsChanged, row, column)
	return nil
}

// SubnoteIndex returns the position of the sub-note with the given midi
// value within a cell, or -1.
func (p *Pattern) SubnoteIndex(row, column, midiNote int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		return -1
	}
	for i, subnote := range p.subnotesAt(index) {
		if subnote.MidiNote() == midiNote {
			return i
		}
	}
	return -1
}

// SetSubnoteMetadata sets one metadata key on a cell's sub-note.
func (p *Pattern) SetSubnoteMetadata(row, column, position int, key string, value int) error {
	p.mu.Lock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	metadata := p.cells[index].metadata
	if position < 0 || position >= len(metadata) {
		p.mu.Unlock()
		return fmt.Errorf("sub-note position must be 0-%d, got %d", len(metadata)-1, position)
	}
	if metadata[position] == nil {
		metadata[position] = map[string]int{}
	}
	metadata[position][key] = value
	p.invalidateCell(row, column)
	p.mu.Unlock()
	p.notify(CellsChanged, row, column)
	return nil
}

// SubnoteMetadata returns one metadata value on a cell's sub-note.
func (p *Pattern) SubnoteMetadata(row, column, position int, key string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		return 0, false
	}
	metadata := p.cells[index].metadata
	if position < 0 || position >= len(metadata) {
		return 0, false
	}
	value, ok := metadata[position][key]
	return value, ok
}

// SetCell replaces a cell's sub-notes and metadata wholesale. The metadata
// list must be aligned to the sub-note list or empty.
func (p *Pattern) SetCell(row, column int, subnotes []*note.Note, metadata []map[string]int) error {
	p.mu.Lock()
	index, err := p.cellIndex(row, column)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if len(metadata) != 0 && len(metadata) != len(subnotes) {
		p.mu.Unlock()
		return fmt.Errorf("metadata length %d does not match sub-note count %d", len(metadata), len(subnotes))
	}
	normalised := make([]*note.Note, 0, len(subnotes))
	for _, subnote := range subnotes {
		if subnote == nil {
			p.mu.Unlock()
			return fmt.Errorf("cannot set a nil sub-note")
		}
		normalised = append(normalised, p.normaliseChannel(subnote))
	}
	if len(metadata) == 0 {
		metadata = make([]map[string]int, len(normalised))
		for i := range metadata {
			metadata[i] = map[string]int{}
		}
	}
	p.cells[index].metadata = metadata
	p.rebuildCellNote(index, normalised)
	p.invalidateCell(row, column)
	p.mu.Unlock()
	p.notify(CellsChanged, row, column)
	return nil
}

func (p *Pattern) subnotesAt(index int) []*note.Note {
	if p.cells[index].note == nil {
		return nil
	}
	return append([]*note.Note(nil), p.cells[index].note.Subnotes()...)
}

// Clear empties every cell.
func (p *Pattern) Clear() {
	p.mu.Lock()
	for i := range p.cells {
		p.cells[i] = cell{}
	}
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(StructureChanged, -1, -1)
}

// ClearRow empties one row.
func (p *Pattern) ClearRow(row int) {
	p.mu.Lock()
	if row < 0 || row >= p.height {
		p.mu.Unlock()
		return
	}
	for column := 0; column < p.width; column++ {
		p.cells[row*p.width+column] = cell{}
	}
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(StructureChanged, row, -1)
}

// ClearBank empties the rows of one bank.
func (p *Pattern) ClearBank(bank int) {
	p.mu.Lock()
	bankLength := p.bankLength
	height := p.height
	p.mu.Unlock()
	for row := bank * bankLength; row < (bank+1)*bankLength && row < height; row++ {
		p.ClearRow(row)
	}
}

// ResetPattern restores playback settings to their defaults, optionally
// clearing the grid as well.
func (p *Pattern) ResetPattern(clearNotes bool) {
	p.mu.Lock()
	p.destination = SynthDestination
	p.noteLength = 3
	p.availableBars = 1
	p.activeBar = 0
	p.bankOffset = 0
	p.bankLength = DefaultBankLength
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	if clearNotes {
		p.Clear()
	}
	p.notify(SettingsChanged, -1, -1)
}

// CloneOther copies another pattern's grid and playback settings.
func (p *Pattern) CloneOther(other *Pattern) {
	other.mu.Lock()
	cells := make([]cell, len(other.cells))
	for i, c := range other.cells {
		copied := cell{note: c.note, metadata: make([]map[string]int, 0, len(c.metadata))}
		for _, entry := range c.metadata {
			entryCopy := make(map[string]int, len(entry))
			for key, value := range entry {
				entryCopy[key] = value
			}
			copied.metadata = append(copied.metadata, entryCopy)
		}
		cells[i] = copied
	}
	width, height := other.width, other.height
	availableBars, activeBar := other.availableBars, other.activeBar
	bankOffset, bankLength := other.bankOffset, other.bankLength
	noteLength, destination := other.noteLength, other.destination
	midiChannel, externalChannel := other.midiChannel, other.externalMidiChannel
	defaultDuration := other.defaultNoteDuration
	other.mu.Unlock()

	p.mu.Lock()
	p.cells = cells
	p.width, p.height = width, height
	p.availableBars, p.activeBar = availableBars, activeBar
	p.bankOffset, p.bankLength = bankOffset, bankLength
	p.noteLength, p.destination = noteLength, destination
	p.midiChannel, p.externalMidiChannel = midiChannel, externalChannel
	p.defaultNoteDuration = defaultDuration
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(StructureChanged, -1, -1)
}

// HasNotes reports whether any cell holds sub-notes.
func (p *Pattern) HasNotes() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.cells {
		if c.note != nil && len(c.note.Subnotes()) > 0 {
			return true
		}
	}
	return false
}

// BankHasNotes reports whether any cell in the given bank holds sub-notes.
func (p *Pattern) BankHasNotes(bank int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for row := bank * p.bankLength; row < (bank+1)*p.bankLength && row < p.height; row++ {
		for column := 0; column < p.width; column++ {
			if c := p.cells[row*p.width+column]; c.note != nil && len(c.note.Subnotes()) > 0 {
				return true
			}
		}
	}
	return false
}
