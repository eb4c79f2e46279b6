// Package midiin reads MIDI from the JACK graph's passthrough ports and
// republishes every event as a timestamp-aligned message. The JACK process
// callback runs on the audio thread and must stay wait-free: events land in
// preallocated per-port rings (or, for zero-wait ports, go straight to the
// subscribers), and a cooperative consumer goroutine flushes the batched
// ports a few times per audio cycle.
package midiin

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/xthexder/go-jack"

	"github.com/zynthbox/playgrid/transport"
)

var listenerDebug = debuggo.Debug("playgrid:midiin")

// PortID identifies which ingress port a message arrived on.
type PortID int

const (
	PassthroughPort PortID = iota
	InternalPassthroughPort
	HardwareInPassthroughPort
	ExternalOutPort
	UnknownPort
)

// ringCapacity is the number of preallocated message slots per port.
const ringCapacity = 1000

// drainInterval is how long the consumer goroutine sleeps between flushes
// of the batched ports.
const drainInterval = 5 * time.Millisecond

// PortConfig describes one ingress port.
type PortConfig struct {
	ID   PortID
	Name string
	// Source is the upstream JACK port to connect from; empty skips the
	// connection attempt.
	Source string
	// WaitTime zero means messages are published directly from the audio
	// callback; anything else batches them for the consumer goroutine.
	WaitTime time.Duration
}

// DefaultPorts returns the standard ingress ports, fed by the router's
// passthrough lanes.
func DefaultPorts() []PortConfig {
	return []PortConfig{
		{ID: PassthroughPort, Name: "PassthroughIn", Source: "ZLRouter:Passthrough", WaitTime: 0},
		{ID: InternalPassthroughPort, Name: "InternalPassthroughIn", Source: "ZLRouter:InternalPassthrough", WaitTime: drainInterval},
		{ID: HardwareInPassthroughPort, Name: "HardwareInPassthroughIn", Source: "ZLRouter:HardwareInPassthrough", WaitTime: drainInterval},
		{ID: ExternalOutPort, Name: "ExternalOutIn", Source: "ZLRouter:ExternalOut", WaitTime: drainInterval},
	}
}

// Handler consumes published messages. Handlers attached to a zero-wait
// port run on the audio thread and must be wait-free themselves.
type Handler func(Message)

type listenerPort struct {
	port   *jack.Port
	config PortConfig
	ring   *ring
}

// Listener owns the JACK client and its ingress ports.
type Listener struct {
	client    *jack.Client
	transport transport.Transport
	ports     []*listenerPort

	handlers atomic.Value // []Handler
	mu       sync.Mutex

	done    chan struct{}
	stopped sync.WaitGroup
}

// Open creates the JACK client, registers the ingress ports and connects
// them to their upstream sources. A port that fails to register is skipped;
// the listener stays operational on the rest. Failing to open the JACK
// client, registering no port at all, or failing to set the process callback
// or activate the client is fatal.
func Open(trans transport.Transport, clientName string, configs []PortConfig) (*Listener, error) {
	client, status := jack.ClientOpen(clientName, jack.NoStartServer)
	if client == nil || status != 0 {
		return nil, fmt.Errorf("failed to open JACK client %q (status %d)", clientName, status)
	}
	l := &Listener{
		client:    client,
		transport: trans,
		done:      make(chan struct{}),
	}
	l.handlers.Store([]Handler(nil))

	for _, config := range configs {
		port := client.PortRegister(config.Name, jack.DEFAULT_MIDI_TYPE, jack.PortIsInput, 0)
		if port == nil {
			listenerDebug("could not register port %s", config.Name)
			continue
		}
		l.ports = append(l.ports, &listenerPort{
			port:   port,
			config: config,
			ring:   newRing(ringCapacity),
		})
	}
	if len(l.ports) == 0 {
		client.Close()
		return nil, fmt.Errorf("no ingress ports could be registered")
	}

	if code := client.SetProcessCallback(l.process); code != 0 {
		client.Close()
		return nil, fmt.Errorf("failed to set JACK process callback (status %d)", code)
	}
	if code := client.Activate(); code != 0 {
		client.Close()
		return nil, fmt.Errorf("failed to activate JACK client (status %d)", code)
	}
	for _, lp := range l.ports {
		if lp.config.Source == "" {
			continue
		}
		if code := client.Connect(lp.config.Source, clientName+":"+lp.config.Name); code != 0 {
			// Report but carry on; the connection can be made externally.
			listenerDebug("could not connect %s to %s (status %d)", lp.config.Source, lp.config.Name, code)
		}
	}

	l.stopped.Add(1)
	go l.drainLoop()
	return l, nil
}

// Subscribe attaches a message handler.
func (l *Listener) Subscribe(handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.handlers.Load().([]Handler)
	updated := make([]Handler, len(current)+1)
	copy(updated, current)
	updated[len(current)] = handler
	l.handlers.Store(updated)
}

func (l *Listener) publish(message Message) {
	for _, handler := range l.handlers.Load().([]Handler) {
		handler(message)
	}
}

// process is the JACK callback. It must not allocate, lock or block.
func (l *Listener) process(nframes uint32) int {
	if nframes == 0 {
		return 0
	}
	subStepMicros := float64(l.transport.SubStepLengthMicros())
	if subStepMicros <= 0 {
		return 0
	}
	sampleRate := float64(l.client.GetSampleRate())
	if sampleRate <= 0 {
		return 0
	}
	microsPerFrame := 1_000_000.0 / sampleRate
	periodMicros := float64(nframes) * microsPerFrame
	// The playhead the transport reports is where scheduling happens, a
	// period ahead of what is sounding right now; pull it back.
	currentPlayhead := float64(l.transport.SubStepPlayhead()) - periodMicros/subStepMicros

	for _, lp := range l.ports {
		events := lp.port.GetMidiEvents(nframes)
		for _, event := range events {
			if event == nil || len(event.Buffer) == 0 {
				continue
			}
			status := event.Buffer[0]
			if status&0xF0 == 0xF0 {
				// System messages are not ours to forward.
				continue
			}
			message := Message{
				Port:      lp.config.ID,
				Timestamp: currentPlayhead + float64(event.Time)*microsPerFrame/subStepMicros,
				Byte1:     status,
			}
			if len(event.Buffer) > 1 {
				message.Byte2 = event.Buffer[1]
			}
			if len(event.Buffer) > 2 {
				message.Byte3 = event.Buffer[2]
			}
			if status >= 0x80 && status < 0xA0 {
				message.On = status >= 0x90
				message.Channel = int(status & 0x0F)
				message.Note = int(message.Byte2)
				message.Velocity = int(message.Byte3)
			}
			if lp.config.WaitTime == 0 {
				l.publish(message)
			} else {
				lp.ring.push(message)
			}
		}
	}
	return 0
}

// drainLoop flushes the batched ports until the listener closes.
func (l *Listener) drainLoop() {
	defer l.stopped.Done()
	for {
		select {
		case <-l.done:
			return
		case <-time.After(drainInterval):
			for _, lp := range l.ports {
				if lp.config.WaitTime == 0 {
					continue
				}
				lp.ring.drain(l.publish)
			}
		}
	}
}

// LostEvents returns how many events were dropped per port on overflow.
func (l *Listener) LostEvents() map[PortID]uint64 {
	lost := make(map[PortID]uint64, len(l.ports))
	for _, lp := range l.ports {
		lost[lp.config.ID] = lp.ring.lostCount()
	}
	return lost
}

// Close stops the consumer goroutine and tears down the JACK client. The
// audio callback stops when the client closes.
func (l *Listener) Close() {
	close(l.done)
	l.stopped.Wait()
	l.client.Close()
}
