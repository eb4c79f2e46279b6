// Package song turns an ordered list of segments into a timeline of timer
// commands, and tracks the playfield: which channel/track/part slots should
// be producing sound at the current playhead position in song mode.
package song

import (
	"sync"
	"time"

	"github.com/GeoffreyPlitt/debuggo"

	"github.com/zynthbox/playgrid/transport"
)

var songDebug = debuggo.Debug("playgrid:song")

const (
	channelCount = 10
	trackCount   = 10
	partCount    = 5

	// rebuildDelay coalesces bursts of segment edits into one playlist
	// rebuild.
	rebuildDelay = 100 * time.Millisecond
)

// ChannelMode describes how a channel produces audio, which decides whether
// a segment clip starts a sample loop or a pattern part.
type ChannelMode int

const (
	SynthMode ChannelMode = iota
	SampleLoopMode
)

// ClipRef identifies one clip within a segment.
type ClipRef struct {
	// Channel is the sequencer channel (row) the clip lives on.
	Channel int
	// Column is the track slot within the channel.
	Column int
	// Part is the part slot (0..4).
	Part int
	// ClipID is the sampler backend's id for the clip.
	ClipID int
}

// Segment is one element of the song timeline.
type Segment struct {
	BarLength  int
	BeatLength int
	Clips      []ClipRef
}

// Duration returns the segment's length in sub-steps.
func (s Segment) Duration(multiplier int) uint64 {
	return uint64(s.BarLength*4+s.BeatLength) * uint64(multiplier)
}

type partState struct {
	active bool
	offset uint64
}

type playfield [channelCount][trackCount][partCount]partState

// Playback is the sequence hookup the scheduler drives when song playback
// starts and stops.
type Playback interface {
	PrepareSequencePlayback()
	DisconnectSequencePlayback()
}

// Scheduler owns the song-mode state machine.
type Scheduler struct {
	mu        sync.Mutex
	transport transport.Transport
	clips     transport.ClipResolver
	sequences []Playback

	songMode     bool
	segments     []Segment
	channelModes [channelCount]ChannelMode

	field        playfield
	playhead     uint64
	playlist     map[uint64][]*transport.TimerCommand
	runningLoops map[int]transport.Clip

	rebuild *time.Timer
}

// NewScheduler creates a scheduler wired to the transport's command and
// running-state signals.
func NewScheduler(trans transport.Transport, clips transport.ClipResolver) *Scheduler {
	s := &Scheduler{
		transport:    trans,
		clips:        clips,
		playlist:     make(map[uint64][]*transport.TimerCommand),
		runningLoops: make(map[int]transport.Clip),
	}
	trans.OnTimerCommand(s.handleTimerCommand)
	trans.OnClipCommandSent(func(command *transport.ClipCommand) {
		if command.StartPlayback && command.Clip != nil {
			s.mu.Lock()
			s.runningLoops[command.Clip.ID()] = command.Clip
			s.mu.Unlock()
		}
	})
	trans.OnTimerRunningChanged(func(running bool) {
		if !running {
			s.handleTimerStopped()
		}
	})
	trans.OnTick(func(uint64) { s.progressPlayback() })
	return s
}

// AttachSequences hands the scheduler the sequences it starts and stops
// with song playback.
func (s *Scheduler) AttachSequences(sequences []Playback) {
	s.mu.Lock()
	s.sequences = append([]Playback(nil), sequences...)
	s.mu.Unlock()
}

// SongMode reports whether the song timeline drives playback.
func (s *Scheduler) SongMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.songMode
}

// SetSongMode switches the song timeline on or off.
func (s *Scheduler) SetSongMode(songMode bool) {
	s.mu.Lock()
	changed := s.songMode != songMode
	s.songMode = songMode
	s.mu.Unlock()
	if changed {
		s.scheduleRebuild()
	}
}

// SetSegments replaces the song timeline; the playlist rebuild is
// debounced.
func (s *Scheduler) SetSegments(segments []Segment) {
	s.mu.Lock()
	s.segments = append([]Segment(nil), segments...)
	s.mu.Unlock()
	s.scheduleRebuild()
}

// SetChannelMode records how a channel produces audio.
func (s *Scheduler) SetChannelMode(channel int, mode ChannelMode) {
	if channel < 0 || channel >= channelCount {
		return
	}
	s.mu.Lock()
	s.channelModes[channel] = mode
	s.mu.Unlock()
	s.scheduleRebuild()
}

// Playhead returns the current song position in sub-steps.
func (s *Scheduler) Playhead() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead
}

// PartActive reports whether the given playfield slot should currently be
// sounding.
func (s *Scheduler) PartActive(channel, track, part int) bool {
	if !validSlot(channel, track, part) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.field[channel][track][part].active
}

// PartOffset returns the sub-step position the given slot was started at,
// used to reproject pattern positions for mid-song starts.
func (s *Scheduler) PartOffset(channel, track, part int) uint64 {
	if !validSlot(channel, track, part) {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.field[channel][track][part].offset
}

func validSlot(channel, track, part int) bool {
	return channel >= 0 && channel < channelCount &&
		track >= 0 && track < trackCount &&
		part >= 0 && part < partCount
}

func (s *Scheduler) scheduleRebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rebuild != nil {
		s.rebuild.Stop()
	}
	s.rebuild = time.AfterFunc(rebuildDelay, s.RebuildPlaylist)
}

// RebuildPlaylist recomputes the command timeline from the segments. It is
// normally reached through the debounced rebuild, but callers that need
// the playlist immediately (such as tests) may invoke it directly.
func (s *Scheduler) RebuildPlaylist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	playlist := make(map[uint64][]*transport.TimerCommand)
	if s.songMode && len(s.segments) > 0 {
		var segmentPosition uint64
		var clipsInPrevious []ClipRef
		for _, segment := range s.segments {
			var commands []*transport.TimerCommand
			for _, clip := range segment.Clips {
				if containsClip(clipsInPrevious, clip) {
					continue
				}
				// A clip absent from the previous segment starts here.
				command := &transport.TimerCommand{Parameter: clip.Channel}
				if s.channelModes[clip.Channel] == SampleLoopMode {
					command.Operation = transport.StartClipLoopOperation
					command.Parameter2 = clip.ClipID
					command.Parameter3 = 60
				} else {
					command.Operation = transport.StartPartOperation
					command.Parameter2 = clip.Column
					command.Parameter3 = clip.Part
					command.BigParameter = segmentPosition
				}
				commands = append(commands, command)
			}
			for _, clip := range clipsInPrevious {
				if containsClip(segment.Clips, clip) {
					continue
				}
				// Carried over from the previous segment but absent here:
				// stop it at this position.
				commands = append(commands, s.stopCommandFor(clip))
			}
			clipsInPrevious = append(clipsInPrevious[:0:0], segment.Clips...)
			playlist[segmentPosition] = commands
			segmentPosition += segment.Duration(s.transport.Multiplier())
		}
		var commands []*transport.TimerCommand
		for _, clip := range clipsInPrevious {
			commands = append(commands, s.stopCommandFor(clip))
		}
		commands = append(commands, &transport.TimerCommand{Operation: transport.StopPlaybackOperation})
		playlist[segmentPosition] = commands
	}
	s.playlist = playlist
	songDebug("playlist rebuilt with %d positions", len(playlist))
}

func (s *Scheduler) stopCommandFor(clip ClipRef) *transport.TimerCommand {
	command := &transport.TimerCommand{Parameter: clip.Channel}
	if s.channelModes[clip.Channel] == SampleLoopMode {
		command.Operation = transport.StopClipLoopOperation
		command.Parameter2 = clip.ClipID
		command.Parameter3 = 60
	} else {
		command.Operation = transport.StopPartOperation
		command.Parameter2 = clip.Column
		command.Parameter3 = clip.Part
	}
	return command
}

func containsClip(clips []ClipRef, clip ClipRef) bool {
	for _, candidate := range clips {
		if candidate == clip {
			return true
		}
	}
	return false
}
