// Package commands implements the editing shell used by playgridctl: a
// small command language over a session's sequences and patterns, usable
// interactively or from piped scripts.
package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zynthbox/playgrid"
	"github.com/zynthbox/playgrid/pattern"
)

// Handler processes user commands against a session.
type Handler struct {
	manager      *playgrid.Manager
	sequenceName string
	dataDir      string
}

// New creates a command handler operating on the given sequence.
func New(manager *playgrid.Manager, sequenceName, dataDir string) *Handler {
	return &Handler{
		manager:      manager,
		sequenceName: sequenceName,
		dataDir:      dataDir,
	}
}

func (h *Handler) activePattern() *pattern.Pattern {
	return h.manager.GetSequence(h.sequenceName).ActivePatternObject()
}

// ProcessCommand parses and executes a single command string.
func (h *Handler) ProcessCommand(cmdLine string) error {
	cmdLine = strings.TrimSpace(cmdLine)
	if cmdLine == "" {
		return h.handleShow(nil)
	}

	parts := strings.Fields(cmdLine)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "set":
		return h.handleSet(parts)
	case "unset":
		return h.handleUnset(parts)
	case "meta":
		return h.handleMeta(parts)
	case "clear":
		return h.handleClear(parts)
	case "show":
		return h.handleShow(parts)
	case "pattern":
		return h.handlePattern(parts)
	case "bank":
		return h.handleBank(parts)
	case "width":
		return h.handleIntSetting(parts, "width", func(p *pattern.Pattern, v int) error { return p.SetWidth(v) })
	case "height":
		return h.handleIntSetting(parts, "height", func(p *pattern.Pattern, v int) error { return p.SetHeight(v) })
	case "bars":
		return h.handleIntSetting(parts, "bars", func(p *pattern.Pattern, v int) error { p.SetAvailableBars(v); return nil })
	case "length":
		return h.handleIntSetting(parts, "length", func(p *pattern.Pattern, v int) error { return p.SetNoteLength(v) })
	case "channel":
		return h.handleIntSetting(parts, "channel", func(p *pattern.Pattern, v int) error { return p.SetMidiChannel(v) })
	case "tempo":
		return h.handleTempo(parts)
	case "record":
		return h.handleRecord(parts)
	case "save":
		return h.handleSave(parts)
	case "load":
		return h.handleLoad(parts)
	case "help":
		return h.handleHelp(parts)
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
}

// handleSet: set <row> <col> <note> [velocity]
func (h *Handler) handleSet(parts []string) error {
	if len(parts) != 4 && len(parts) != 5 {
		return fmt.Errorf("usage: set <row> <col> <note> [velocity] (e.g., 'set 0 0 C4 100')")
	}
	row, col, err := h.parsePosition(parts[1], parts[2])
	if err != nil {
		return err
	}
	midiNote, err := NoteNameToMIDI(parts[3])
	if err != nil {
		return err
	}
	p := h.activePattern()
	theNote := h.manager.Registry().GetNote(int(midiNote), p.MidiChannel())
	index, err := p.InsertSubnoteSorted(row, col, theNote)
	if err != nil {
		return err
	}
	if len(parts) == 5 {
		velocity, err := strconv.Atoi(parts[4])
		if err != nil || velocity < 0 || velocity > 127 {
			return fmt.Errorf("velocity must be 0-127")
		}
		if err := p.SetSubnoteMetadata(row, col, index, pattern.VelocityKey, velocity); err != nil {
			return err
		}
	}
	fmt.Printf("Set %s at (%d, %d)\n", parts[3], row, col)
	return nil
}

// handleUnset: unset <row> <col> <note>
func (h *Handler) handleUnset(parts []string) error {
	if len(parts) != 4 {
		return fmt.Errorf("usage: unset <row> <col> <note>")
	}
	row, col, err := h.parsePosition(parts[1], parts[2])
	if err != nil {
		return err
	}
	midiNote, err := NoteNameToMIDI(parts[3])
	if err != nil {
		return err
	}
	p := h.activePattern()
	index := p.SubnoteIndex(row, col, int(midiNote))
	if index == -1 {
		return fmt.Errorf("no %s at (%d, %d)", parts[3], row, col)
	}
	if err := p.RemoveSubnote(row, col, index); err != nil {
		return err
	}
	fmt.Printf("Removed %s from (%d, %d)\n", parts[3], row, col)
	return nil
}

// handleMeta: meta <row> <col> <note> <velocity|delay|duration> <value>
func (h *Handler) handleMeta(parts []string) error {
	if len(parts) != 6 {
		return fmt.Errorf("usage: meta <row> <col> <note> <velocity|delay|duration> <value>")
	}
	row, col, err := h.parsePosition(parts[1], parts[2])
	if err != nil {
		return err
	}
	midiNote, err := NoteNameToMIDI(parts[3])
	if err != nil {
		return err
	}
	key := strings.ToLower(parts[4])
	if key != pattern.VelocityKey && key != pattern.DelayKey && key != pattern.DurationKey {
		return fmt.Errorf("metadata key must be velocity, delay or duration")
	}
	value, err := strconv.Atoi(parts[5])
	if err != nil {
		return fmt.Errorf("invalid value: %s", parts[5])
	}
	p := h.activePattern()
	index := p.SubnoteIndex(row, col, int(midiNote))
	if index == -1 {
		return fmt.Errorf("no %s at (%d, %d)", parts[3], row, col)
	}
	if err := p.SetSubnoteMetadata(row, col, index, key, value); err != nil {
		return err
	}
	fmt.Printf("Set %s=%d on %s at (%d, %d)\n", key, value, parts[3], row, col)
	return nil
}

// handleClear: clear [row]
func (h *Handler) handleClear(parts []string) error {
	p := h.activePattern()
	if len(parts) > 1 {
		row, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid row: %s", parts[1])
		}
		p.ClearRow(row)
		fmt.Printf("Cleared row %d\n", row)
		return nil
	}
	p.Clear()
	fmt.Println("Cleared pattern")
	return nil
}

// handleShow prints the grid of the current bank.
func (h *Handler) handleShow(parts []string) error {
	p := h.activePattern()
	seq := h.manager.GetSequence(h.sequenceName)
	fmt.Printf("Sequence %q pattern %d, bank %s, channel %d, %d bars of %d steps, note length %d\n",
		seq.Name(), seq.ActivePattern(), p.Bank(), p.MidiChannel(), p.AvailableBars(), p.Width(), p.NoteLength())
	for row := p.BankOffset(); row < p.BankOffset()+p.AvailableBars(); row++ {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%2d: ", row))
		for col := 0; col < p.Width(); col++ {
			theNote := p.Note(row, col)
			if theNote == nil || len(theNote.Subnotes()) == 0 {
				sb.WriteString(" . ")
				continue
			}
			if len(theNote.Subnotes()) == 1 {
				sb.WriteString(fmt.Sprintf("%3s", theNote.Subnotes()[0].Name()))
			} else {
				sb.WriteString(fmt.Sprintf("%2dn", len(theNote.Subnotes())))
			}
		}
		fmt.Println(sb.String())
	}
	return nil
}

// handlePattern: pattern <index>
func (h *Handler) handlePattern(parts []string) error {
	if len(parts) != 2 {
		return fmt.Errorf("usage: pattern <index>")
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid pattern index: %s", parts[1])
	}
	if err := h.manager.GetSequence(h.sequenceName).SetActivePattern(index); err != nil {
		return err
	}
	fmt.Printf("Editing pattern %d\n", index)
	return nil
}

// handleBank: bank <A..H>
func (h *Handler) handleBank(parts []string) error {
	if len(parts) != 2 {
		return fmt.Errorf("usage: bank <A..H>")
	}
	h.activePattern().SetBank(strings.ToUpper(parts[1]))
	fmt.Printf("Bank %s\n", h.activePattern().Bank())
	return nil
}

func (h *Handler) handleIntSetting(parts []string, name string, apply func(*pattern.Pattern, int) error) error {
	if len(parts) != 2 {
		return fmt.Errorf("usage: %s <value>", name)
	}
	value, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid %s: %s", name, parts[1])
	}
	if err := apply(h.activePattern(), value); err != nil {
		return err
	}
	fmt.Printf("Set %s to %d\n", name, value)
	return nil
}

// handleTempo: tempo <bpm>
func (h *Handler) handleTempo(parts []string) error {
	if len(parts) != 2 {
		return fmt.Errorf("usage: tempo <bpm>")
	}
	bpm, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid BPM: %s", parts[1])
	}
	if err := h.manager.GetSequence(h.sequenceName).SetBPM(bpm); err != nil {
		return err
	}
	fmt.Printf("Tempo set to %d BPM\n", bpm)
	return nil
}

// handleRecord: record on|off
func (h *Handler) handleRecord(parts []string) error {
	if len(parts) != 2 {
		return fmt.Errorf("usage: record on|off")
	}
	switch strings.ToLower(parts[1]) {
	case "on":
		h.activePattern().SetRecordLive(true)
		fmt.Println("Live recording enabled")
	case "off":
		h.activePattern().SetRecordLive(false)
		fmt.Println("Live recording disabled")
	default:
		return fmt.Errorf("usage: record on|off")
	}
	return nil
}

// handleSave: save
func (h *Handler) handleSave(parts []string) error {
	seq := h.manager.GetSequence(h.sequenceName)
	if err := seq.Save(h.dataDir); err != nil {
		return err
	}
	fmt.Printf("Saved sequence %q\n", seq.Name())
	return nil
}

// handleLoad: load
func (h *Handler) handleLoad(parts []string) error {
	seq := h.manager.GetSequence(h.sequenceName)
	if err := seq.Load(h.dataDir); err != nil {
		return err
	}
	fmt.Printf("Loaded sequence %q\n", seq.Name())
	return nil
}

// handleHelp prints the command reference.
func (h *Handler) handleHelp(parts []string) error {
	fmt.Println(`Commands:
  set <row> <col> <note> [velocity]   add a note to a cell (e.g., 'set 0 0 C4')
  unset <row> <col> <note>            remove a note from a cell
  meta <row> <col> <note> <key> <v>   set velocity/delay/duration metadata
  clear [row]                         clear the pattern or one row
  show                                print the current bank
  pattern <index>                     switch the pattern being edited
  bank <A..H>                         switch banks
  width|height|bars|length|channel <n>
  tempo <bpm>                         set the sequence tempo
  record on|off                       toggle live recording
  save / load                         persist the sequence
  quit                                exit`)
	return nil
}

func (h *Handler) parsePosition(rowText, colText string) (int, int, error) {
	row, err := strconv.Atoi(rowText)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row: %s", rowText)
	}
	col, err := strconv.Atoi(colText)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid column: %s", colText)
	}
	return row, col, nil
}
