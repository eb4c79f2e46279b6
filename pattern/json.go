package pattern

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zynthbox/playgrid/note"
	"github.com/zynthbox/playgrid/transport"
)

// NoteJSON is the serialised form of a note identity. A compound note
// carries its subnotes; an atomic one just the (note, channel) pair.
type NoteJSON struct {
	MidiNote    int        `json:"midiNote"`
	MidiChannel int        `json:"midiChannel"`
	Subnotes    []NoteJSON `json:"subnotes,omitempty"`
}

// CellJSON is one grid cell: its compound note (if any) plus the aligned
// sub-note metadata.
type CellJSON struct {
	Note     *NoteJSON        `json:"note"`
	Metadata []map[string]int `json:"metadata"`
}

// PatternJSON is the serialised grid: a 2-D array of cells, rows outermost.
type PatternJSON [][]CellJSON

func noteToJSON(theNote *note.Note) *NoteJSON {
	if theNote == nil {
		return nil
	}
	serialised := &NoteJSON{
		MidiNote:    theNote.MidiNote(),
		MidiChannel: theNote.Channel(),
	}
	for _, subnote := range theNote.Subnotes() {
		serialised.Subnotes = append(serialised.Subnotes, *noteToJSON(subnote))
	}
	return serialised
}

func noteFromJSON(registry *note.Registry, serialised *NoteJSON) *note.Note {
	if serialised == nil {
		return nil
	}
	if len(serialised.Subnotes) > 0 {
		subnotes := make([]*note.Note, 0, len(serialised.Subnotes))
		for i := range serialised.Subnotes {
			subnotes = append(subnotes, noteFromJSON(registry, &serialised.Subnotes[i]))
		}
		return registry.GetCompoundNote(subnotes)
	}
	return registry.GetNote(serialised.MidiNote, serialised.MidiChannel)
}

// ToJSON serialises the grid.
func (p *Pattern) ToJSON() PatternJSON {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows := make(PatternJSON, 0, p.height)
	for row := 0; row < p.height; row++ {
		cells := make([]CellJSON, 0, p.width)
		for column := 0; column < p.width; column++ {
			c := p.cells[row*p.width+column]
			serialised := CellJSON{Note: noteToJSON(c.note)}
			for _, entry := range c.metadata {
				copied := make(map[string]int, len(entry))
				for key, value := range entry {
					copied[key] = value
				}
				serialised.Metadata = append(serialised.Metadata, copied)
			}
			cells = append(cells, serialised)
		}
		rows = append(rows, cells)
	}
	return rows
}

// LoadJSON replaces the grid contents from serialised form. The grid is
// resized to fit the serialised dimensions.
func (p *Pattern) LoadJSON(serialised PatternJSON) error {
	height := len(serialised)
	if height == 0 {
		p.Clear()
		return nil
	}
	width := len(serialised[0])
	for _, row := range serialised {
		if len(row) != width {
			return fmt.Errorf("ragged pattern rows: expected %d cells, got %d", width, len(row))
		}
	}
	p.mu.Lock()
	p.width = width
	p.height = height
	p.cells = make([]cell, width*height)
	for rowIndex, row := range serialised {
		for columnIndex, serialisedCell := range row {
			loaded := cell{note: noteFromJSON(p.registry, serialisedCell.Note)}
			for _, entry := range serialisedCell.Metadata {
				copied := make(map[string]int, len(entry))
				for key, value := range entry {
					copied[key] = value
				}
				loaded.metadata = append(loaded.metadata, copied)
			}
			p.cells[rowIndex*width+columnIndex] = loaded
		}
	}
	p.compiled = make(map[int]map[int]*transport.MidiBuffer)
	p.mu.Unlock()
	p.notify(StructureChanged, -1, -1)
	return nil
}

// ExportToFile writes the grid to a standalone JSON file.
func (p *Pattern) ExportToFile(fileName string) error {
	data, err := json.MarshalIndent(p.ToJSON(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialise pattern: %w", err)
	}
	if err := os.WriteFile(fileName, data, 0644); err != nil {
		return fmt.Errorf("failed to write pattern file: %w", err)
	}
	return nil
}
