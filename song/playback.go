package song

import "github.com/zynthbox/playgrid/transport"

// ensureClipCommand attaches a fresh sampler instruction to a clip-loop
// timer command. The transport swallows the clip command on dispatch, so
// one is rebuilt before every scheduling.
func (s *Scheduler) ensureClipCommand(command *transport.TimerCommand) bool {
	if s.clips == nil {
		return false
	}
	clip := s.clips.ByID(command.Parameter2)
	if clip == nil {
		return false
	}
	clipCommand := transport.ChannelCommand(clip, command.Parameter)
	clipCommand.StartPlayback = command.Operation == transport.StartClipLoopOperation
	clipCommand.StopPlayback = !clipCommand.StartPlayback
	clipCommand.MidiNote = command.Parameter3
	clipCommand.Volume = clip.VolumeAbsolute()
	clipCommand.Looping = true
	command.ClipCommand = clipCommand
	return true
}

// progressPlayback advances the playhead one sub-step and dispatches any
// commands scheduled at the new position. Driven by the transport tick.
func (s *Scheduler) progressPlayback() {
	if !s.transport.TimerRunning() {
		return
	}
	s.mu.Lock()
	if !s.songMode {
		s.mu.Unlock()
		return
	}
	s.playhead++
	commands := s.playlist[s.playhead]
	s.mu.Unlock()
	for _, command := range commands {
		switch command.Operation {
		case transport.StartClipLoopOperation, transport.StopClipLoopOperation:
			if command.Parameter2 < 1 {
				// Nothing to loop; skip the command outright.
				continue
			}
			if s.ensureClipCommand(command) {
				s.transport.ScheduleTimerCommand(0, command)
			}
		case transport.StartPartOperation, transport.StopPartOperation:
			// Parts flip playfield state synchronously so the next pattern
			// advancement sees them.
			s.handleTimerCommand(command)
		case transport.StopPlaybackOperation:
			// Make the sequences fall silent on this very tick, then let
			// the transport run the stop.
			s.mu.Lock()
			sequences := append([]Playback(nil), s.sequences...)
			s.mu.Unlock()
			for _, seq := range sequences {
				seq.DisconnectSequencePlayback()
			}
			s.transport.ScheduleTimerCommand(0, command)
		default:
			s.transport.ScheduleTimerCommand(0, command)
		}
	}
}

// handleTimerCommand applies part state changes and playback stops. Wired
// to the transport's command signal, and called directly for synchronous
// part flips.
func (s *Scheduler) handleTimerCommand(command *transport.TimerCommand) {
	switch command.Operation {
	case transport.StartPartOperation:
		if !validSlot(command.Parameter, command.Parameter2, command.Parameter3) {
			return
		}
		s.mu.Lock()
		s.field[command.Parameter][command.Parameter2][command.Parameter3] = partState{
			active: true,
			offset: command.BigParameter,
		}
		s.mu.Unlock()
	case transport.StopPartOperation:
		if !validSlot(command.Parameter, command.Parameter2, command.Parameter3) {
			return
		}
		s.mu.Lock()
		s.field[command.Parameter][command.Parameter2][command.Parameter3].active = false
		s.mu.Unlock()
	case transport.StopPlaybackOperation:
		s.StopPlayback()
	}
}

// movePlayhead walks the playhead to a new position, applying every
// playlist entry on the way. With ignoreStop set, StopPlayback commands are
// skipped, which is what makes the pre-start dry run safe.
func (s *Scheduler) movePlayhead(newPosition uint64, ignoreStop bool) {
	s.mu.Lock()
	if newPosition == s.playhead {
		s.mu.Unlock()
		return
	}
	direction := uint64(1)
	backwards := s.playhead > newPosition
	for s.playhead != newPosition {
		if backwards {
			s.playhead -= direction
		} else {
			s.playhead += direction
		}
		commands := s.playlist[s.playhead]
		for _, command := range commands {
			switch command.Operation {
			case transport.StopPlaybackOperation:
				if ignoreStop {
					continue
				}
				s.mu.Unlock()
				s.handleTimerCommand(command)
				s.mu.Lock()
			case transport.StartClipLoopOperation, transport.StopClipLoopOperation:
				if command.Parameter2 < 1 {
					continue
				}
				if s.ensureClipCommand(command) {
					s.transport.ScheduleTimerCommand(0, command)
				}
			default:
				s.mu.Unlock()
				s.handleTimerCommand(command)
				s.mu.Lock()
			}
		}
	}
	s.mu.Unlock()
}

// StartPlayback begins song playback at startOffset sub-steps into the
// timeline. The playfield is rebuilt by dry-running every playlist command
// up to the offset, so parts that started earlier are active with their
// original offsets. A positive duration schedules an automatic stop.
func (s *Scheduler) StartPlayback(startOffset, duration uint64) {
	s.mu.Lock()
	s.field = playfield{}
	// Position 0 carries the first segment's commands; stepping from 1 to 0
	// applies them before the transport starts rolling.
	s.playhead = 1
	sequences := append([]Playback(nil), s.sequences...)
	s.mu.Unlock()

	s.movePlayhead(0, true)
	s.movePlayhead(startOffset, true)
	if duration > 0 {
		s.transport.ScheduleTimerCommand(int64(duration), &transport.TimerCommand{
			Operation: transport.StopPlaybackOperation,
		})
	}
	for _, seq := range sequences {
		seq.PrepareSequencePlayback()
	}
	s.transport.Start(s.transport.BPM())
}

// StopPlayback halts song playback: the sequences disconnect immediately
// and the playhead rewinds to 0, applying every playlist command it passes
// except StopPlayback.
func (s *Scheduler) StopPlayback() {
	s.mu.Lock()
	sequences := append([]Playback(nil), s.sequences...)
	s.mu.Unlock()
	for _, seq := range sequences {
		seq.DisconnectSequencePlayback()
	}
	// Rewind before halting the transport: the stop signal's loop/playfield
	// cleanup then lands on the rewound state.
	s.movePlayhead(0, true)
	s.transport.Stop()
}

// handleTimerStopped fans out stop commands for every loop the transport
// reported as running, across all the lanes a loop may have been started
// on, and reinitialises the playfield.
func (s *Scheduler) handleTimerStopped() {
	s.mu.Lock()
	loops := make([]transport.Clip, 0, len(s.runningLoops))
	for _, clip := range s.runningLoops {
		loops = append(loops, clip)
	}
	s.runningLoops = make(map[int]transport.Clip)
	s.field = playfield{}
	s.mu.Unlock()
	for _, clip := range loops {
		command := transport.NoEffectCommand(clip)
		command.StopPlayback = true
		s.transport.ScheduleClipCommand(command, 0)
		command = transport.EffectedCommand(clip)
		command.StopPlayback = true
		s.transport.ScheduleClipCommand(command, 0)
		for channel := 0; channel < channelCount; channel++ {
			command = transport.ChannelCommand(clip, channel)
			command.MidiNote = 60
			command.StopPlayback = true
			s.transport.ScheduleClipCommand(command, 0)
		}
	}
}
