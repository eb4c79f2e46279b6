package sequence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zynthbox/playgrid/pattern"
)

// sequenceFile is the on-disk form of a sequence.
type sequenceFile struct {
	ActivePattern int                   `json:"activePattern"`
	Patterns      []pattern.PatternJSON `json:"patterns"`
}

// sanitizeName keeps filename-safe characters: letters, digits, space, dot
// and underscore.
func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '.' || r == '_' {
			sb.WriteRune(r)
		}
	}
	result := sb.String()
	if result == "" {
		return "unnamed"
	}
	return result
}

// dataLocation returns the directory a sequence persists under.
func (s *Sequence) dataLocation(dataDir string) string {
	return filepath.Join(dataDir, "session", "sequences", sanitizeName(s.Name()))
}

// FilePath returns the file this sequence saves to under dataDir.
func (s *Sequence) FilePath(dataDir string) string {
	s.mu.RLock()
	version := s.version
	s.mu.RUnlock()
	return filepath.Join(s.dataLocation(dataDir), strconv.Itoa(version))
}

// Save writes the sequence below dataDir.
func (s *Sequence) Save(dataDir string) error {
	s.mu.RLock()
	serialised := sequenceFile{ActivePattern: s.activePattern}
	patterns := append([]*pattern.Pattern(nil), s.patterns...)
	s.mu.RUnlock()
	for _, p := range patterns {
		serialised.Patterns = append(serialised.Patterns, p.ToJSON())
	}

	data, err := json.MarshalIndent(serialised, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialise sequence: %w", err)
	}
	location := s.dataLocation(dataDir)
	if err := os.MkdirAll(location, 0755); err != nil {
		return fmt.Errorf("failed to create sequence directory: %w", err)
	}
	if err := os.WriteFile(s.FilePath(dataDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write sequence file: %w", err)
	}
	return nil
}

// Load replaces the sequence's patterns from disk. Nothing is touched until
// the whole file has parsed, so a failed load leaves the sequence as it
// was.
func (s *Sequence) Load(dataDir string) error {
	data, err := os.ReadFile(s.FilePath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("sequence %q has not been saved", s.Name())
		}
		return fmt.Errorf("failed to read sequence file: %w", err)
	}
	var serialised sequenceFile
	if err := json.Unmarshal(data, &serialised); err != nil {
		return fmt.Errorf("failed to parse sequence file: %w", err)
	}

	loaded := make([]*pattern.Pattern, 0, len(serialised.Patterns))
	for i, patternJSON := range serialised.Patterns {
		p := pattern.New(s.registry, s.transport)
		if err := p.LoadJSON(patternJSON); err != nil {
			return fmt.Errorf("failed to load pattern %d: %w", i, err)
		}
		loaded = append(loaded, p)
	}

	s.mu.Lock()
	s.patterns = loaded
	for i, p := range s.patterns {
		p.AttachSequence(s, i)
	}
	s.activePattern = serialised.ActivePattern
	if s.activePattern < 0 || s.activePattern >= len(s.patterns) {
		s.activePattern = 0
	}
	configure := s.configure
	s.mu.Unlock()
	if configure != nil {
		for _, p := range loaded {
			configure(p)
		}
	}
	return nil
}
