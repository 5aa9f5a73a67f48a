package transport

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/pairchat/internal/signal"
)

// Memory is a deterministic in-process Manager used by the test suite
// and by loopback runs. A pair of Memory managers negotiates through
// the same artifact exchange as the real backend, with a scripted
// candidate harvest and an immediate channel open once both sides have
// applied the remote artifact.
type Memory struct {
	mu     sync.Mutex
	logger *logrus.Logger
	name   string

	phase     Phase
	role      role
	state     ConnectionState
	localDesc string

	peer          *Memory
	remoteApplied bool

	events chan Event
	closed bool
}

// NewMemoryPair returns two linked managers. By convention the first
// acts as host and the second as joiner, though neither is committed to
// a role until the first negotiation call.
func NewMemoryPair(logger *logrus.Logger) (*Memory, *Memory) {
	if logger == nil {
		logger = logrus.New()
	}
	a := &Memory{logger: logger, name: "a", events: make(chan Event, eventBufferSize)}
	b := &Memory{logger: logger, name: "b", events: make(chan Event, eventBufferSize)}
	a.peer = b
	b.peer = a
	return a, b
}

func (m *Memory) StartAsHost() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case PhaseUninitialized:
	case PhaseClosed:
		return ErrClosed
	default:
		return ErrAlreadyStarted
	}

	m.role = roleHost
	m.localDesc = fmt.Sprintf("memory-offer-%s", m.name)
	m.phase = PhaseNegotiationStarted
	m.harvestLocked()
	m.phase = PhaseOfferReady
	return nil
}

func (m *Memory) AcceptOffer(artifact string) error {
	m.mu.Lock()

	switch m.phase {
	case PhaseUninitialized:
	case PhaseClosed:
		m.mu.Unlock()
		return ErrClosed
	default:
		m.mu.Unlock()
		return ErrInvalidState
	}

	remote, err := signal.Decode(artifact)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidOffer, err)
	}
	if !strings.HasPrefix(remote.Description, "memory-offer-") {
		m.mu.Unlock()
		return fmt.Errorf("%w: not an offer", ErrInvalidOffer)
	}

	m.role = roleJoiner
	m.localDesc = fmt.Sprintf("memory-answer-%s", m.name)
	m.phase = PhaseNegotiationStarted
	m.harvestLocked()
	m.phase = PhaseAnswerReady
	m.remoteApplied = true
	m.mu.Unlock()

	m.tryConnect()
	return nil
}

func (m *Memory) AcceptAnswer(artifact string) error {
	m.mu.Lock()

	if m.phase == PhaseClosed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.role != roleHost {
		m.mu.Unlock()
		return ErrInvalidState
	}
	switch m.phase {
	case PhaseNegotiationStarted, PhaseOfferReady:
	default:
		m.mu.Unlock()
		return ErrInvalidState
	}

	remote, err := signal.Decode(artifact)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}
	if !strings.HasPrefix(remote.Description, "memory-answer-") {
		m.mu.Unlock()
		return fmt.Errorf("%w: not an answer", ErrInvalidAnswer)
	}

	m.phase = PhaseNegotiating
	m.remoteApplied = true
	m.mu.Unlock()

	m.tryConnect()
	return nil
}

func (m *Memory) LocalArtifact() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.localDesc == "" {
		return "", ErrInvalidState
	}
	return signal.Encode(signal.Artifact{
		Description: m.localDesc,
		Candidates:  m.state.Candidates,
	})
}

func (m *Memory) Send(data []byte) error {
	m.mu.Lock()
	open := m.state.Channel == ChannelOpen
	peer := m.peer
	m.mu.Unlock()

	if !open {
		return fmt.Errorf("%w: channel is not open", ErrInvalidState)
	}

	// Copy so the caller can reuse its buffer.
	out := make([]byte, len(data))
	copy(out, data)
	peer.deliver(out)
	return nil
}

func (m *Memory) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *Memory) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Memory) Events() <-chan Event {
	return m.events
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.phase == PhaseClosed {
		m.mu.Unlock()
		return nil
	}
	m.phase = PhaseClosed
	m.closed = true
	m.state.Connectivity = ConnectivityClosed
	m.state.Channel = ChannelClosed
	peer := m.peer
	close(m.events)
	m.mu.Unlock()

	if peer != nil {
		peer.peerClosed()
	}
	return nil
}

// harvestLocked runs the scripted candidate discovery. Caller holds the
// mutex. Candidates arrive one by one, then gathering completes, the
// same shape the real backend produces.
func (m *Memory) harvestLocked() {
	m.state.Gathering = GatheringInProgress
	for i := 0; i < 2; i++ {
		c := signal.Candidate{
			Candidate:     fmt.Sprintf("candidate:%d 1 udp 1 192.0.2.%d 9 typ host", i+1, i+1),
			SDPMid:        "0",
			SDPMLineIndex: 0,
		}
		m.state.Candidates = AppendCandidate(m.state.Candidates, c)
		m.emitLocked(Event{Kind: EventCandidate, Candidate: &c})
	}
	m.state.Gathering = GatheringComplete
	m.emitLocked(Event{Kind: EventGatheringComplete})
}

// tryConnect opens the channel on both sides once both have applied
// the remote artifact. Locks are taken one side at a time in a fixed
// order so two concurrent negotiation calls cannot deadlock.
func (m *Memory) tryConnect() {
	first, second := m, m.peer
	if second == nil {
		return
	}
	if second.name < first.name {
		first, second = second, first
	}

	first.mu.Lock()
	ready := first.remoteApplied && !first.closed
	first.mu.Unlock()
	if !ready {
		return
	}
	second.mu.Lock()
	ready = second.remoteApplied && !second.closed
	second.mu.Unlock()
	if !ready {
		return
	}

	first.mu.Lock()
	first.openLocked()
	first.mu.Unlock()
	second.mu.Lock()
	second.openLocked()
	second.mu.Unlock()
}

// openLocked walks the side through connectivity checks to an open
// channel. Caller holds the mutex.
func (m *Memory) openLocked() {
	if m.state.Channel == ChannelOpen || m.closed {
		return
	}
	m.state.Connectivity = ConnectivityChecking
	m.emitLocked(Event{Kind: EventConnectivityChange})
	m.state.Connectivity = ConnectivityConnected
	m.emitLocked(Event{Kind: EventConnectivityChange})
	m.state.Channel = ChannelOpen
	m.phase = PhaseChannelOpen
	m.emitLocked(Event{Kind: EventChannelOpen})
}

func (m *Memory) deliver(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.emitLocked(Event{Kind: EventMessage, Data: data})
}

func (m *Memory) peerClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.state.Channel == ChannelOpen {
		m.state.Channel = ChannelClosed
		m.state.Connectivity = ConnectivityDisconnected
		m.emitLocked(Event{Kind: EventChannelClose})
	}
}

func (m *Memory) emitLocked(ev Event) {
	if m.closed {
		return
	}
	ev.State = m.state.clone()
	select {
	case m.events <- ev:
	default:
		m.logger.Warnf("Event buffer full, dropping %s", ev.Kind)
	}
}
