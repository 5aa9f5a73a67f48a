package transport

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/pairchat/internal/signal"
)

const eventBufferSize = 64

var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// DefaultSTUNConfig returns the peer connection configuration used when
// the caller does not provide one.
func DefaultSTUNConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: defaultSTUNServers},
		},
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
}

func defaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := "pairchat"
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}

type role int

const (
	roleNone role = iota
	roleHost
	roleJoiner
)

// WebRTC is the Manager implementation backed by pion. All pion
// callbacks funnel into the event stream; callers never touch the peer
// connection directly.
type WebRTC struct {
	mu     sync.Mutex
	logger *logrus.Logger
	config webrtc.Configuration

	phase     Phase
	role      role
	state     ConnectionState
	localDesc string

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	events chan Event
	closed bool
}

type Options struct {
	// Config overrides the peer connection configuration. Zero value
	// means DefaultSTUNConfig.
	Config *webrtc.Configuration
	Logger *logrus.Logger
}

func NewWebRTC(opts Options) *WebRTC {
	config := DefaultSTUNConfig()
	if opts.Config != nil {
		config = *opts.Config
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &WebRTC{
		logger: log,
		config: config,
		phase:  PhaseUninitialized,
		events: make(chan Event, eventBufferSize),
	}
}

func (m *WebRTC) StartAsHost() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case PhaseUninitialized:
	case PhaseClosed:
		return ErrClosed
	default:
		return ErrAlreadyStarted
	}

	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	m.pc = pc
	m.role = roleHost
	m.wireConnectionLocked()

	// The host creates the data channel; the joiner waits for it.
	dc, err := pc.CreateDataChannel("data", defaultDataChannelConfig())
	if err != nil {
		pc.Close()
		m.pc = nil
		m.role = roleNone
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	m.wireDataChannelLocked(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		m.pc = nil
		m.role = roleNone
		return fmt.Errorf("failed to create offer: %w", err)
	}
	// SetLocalDescription starts candidate gathering.
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		m.pc = nil
		m.role = roleNone
		return fmt.Errorf("failed to set local description: %w", err)
	}

	m.localDesc = offer.SDP
	m.phase = PhaseNegotiationStarted
	m.state.Gathering = GatheringInProgress
	m.logger.Info("Started negotiation as host, gathering candidates")
	return nil
}

func (m *WebRTC) AcceptOffer(artifact string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case PhaseUninitialized:
	case PhaseClosed:
		return ErrClosed
	default:
		return ErrInvalidState
	}

	remote, err := signal.Decode(artifact)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOffer, err)
	}

	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	fail := func(err error) error {
		pc.Close()
		m.pc = nil
		m.role = roleNone
		return err
	}

	m.pc = pc
	m.role = roleJoiner
	m.wireConnectionLocked()
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.wireDataChannelLocked(dc)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  remote.Description,
	}); err != nil {
		return fail(fmt.Errorf("%w: failed to apply remote description: %v", ErrInvalidOffer, err))
	}
	if err := m.applyRemoteCandidatesLocked(remote.Candidates); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrInvalidOffer, err))
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create answer: %w", err))
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("failed to set local description: %w", err))
	}

	m.localDesc = answer.SDP
	m.phase = PhaseNegotiationStarted
	m.state.Gathering = GatheringInProgress
	m.logger.Info("Accepted offer as joiner, gathering candidates")
	return nil
}

func (m *WebRTC) AcceptAnswer(artifact string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseClosed {
		return ErrClosed
	}
	if m.role != roleHost {
		return ErrInvalidState
	}
	switch m.phase {
	case PhaseNegotiationStarted, PhaseOfferReady:
	default:
		return ErrInvalidState
	}

	remote, err := signal.Decode(artifact)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}

	if err := m.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  remote.Description,
	}); err != nil {
		return fmt.Errorf("%w: failed to apply remote description: %v", ErrInvalidAnswer, err)
	}
	if err := m.applyRemoteCandidatesLocked(remote.Candidates); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}

	m.phase = PhaseNegotiating
	m.logger.Info("Applied answer, waiting for connectivity")
	return nil
}

func (m *WebRTC) LocalArtifact() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.localDesc == "" {
		return "", ErrInvalidState
	}
	if m.state.Gathering != GatheringComplete {
		// Legal but degraded: candidates discovered after this point
		// never reach the peer.
		m.logger.Warn("Producing artifact before gathering completed")
	}
	return signal.Encode(signal.Artifact{
		Description: m.localDesc,
		Candidates:  m.state.Candidates,
	})
}

func (m *WebRTC) Send(data []byte) error {
	m.mu.Lock()
	dc := m.dc
	open := m.state.Channel == ChannelOpen
	m.mu.Unlock()

	if !open || dc == nil {
		return fmt.Errorf("%w: channel is not open", ErrInvalidState)
	}
	return dc.Send(data)
}

func (m *WebRTC) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *WebRTC) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *WebRTC) Events() <-chan Event {
	return m.events
}

func (m *WebRTC) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseClosed {
		return nil
	}
	m.phase = PhaseClosed
	m.closed = true

	var err error
	if m.pc != nil {
		err = m.pc.Close()
		m.pc = nil
		m.dc = nil
	}
	close(m.events)
	return err
}

// wireConnectionLocked installs the peer connection callbacks. Caller
// holds the mutex.
func (m *WebRTC) wireConnectionLocked() {
	m.pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		m.mu.Lock()
		defer m.mu.Unlock()

		if ice == nil {
			// pion signals end of gathering with a nil candidate.
			m.state.Gathering = GatheringComplete
			switch {
			case m.role == roleHost && m.phase == PhaseNegotiationStarted:
				m.phase = PhaseOfferReady
			case m.role == roleJoiner && m.phase == PhaseNegotiationStarted:
				m.phase = PhaseAnswerReady
			}
			m.logger.Infof("Candidate gathering complete with %d candidates", len(m.state.Candidates))
			m.emitLocked(Event{Kind: EventGatheringComplete})
			return
		}

		init := ice.ToJSON()
		c := signal.Candidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			c.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			c.SDPMLineIndex = *init.SDPMLineIndex
		}
		m.state.Candidates = AppendCandidate(m.state.Candidates, c)
		m.logger.Debugf("Discovered candidate: %s", c.Candidate)
		m.emitLocked(Event{Kind: EventCandidate, Candidate: &c})
	})

	m.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.state.Connectivity = mapConnectivity(s)
		m.logger.Infof("Peer connection state changed: %s", s.String())
		m.emitLocked(Event{Kind: EventConnectivityChange})
	})
}

// wireDataChannelLocked installs the data channel callbacks. Caller
// holds the mutex.
func (m *WebRTC) wireDataChannelLocked(dc *webrtc.DataChannel) {
	m.dc = dc

	dc.OnOpen(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.logger.Infof("Data channel '%s'-'%d' open", dc.Label(), dc.ID())
		m.state.Channel = ChannelOpen
		if m.phase != PhaseClosed {
			m.phase = PhaseChannelOpen
		}
		m.emitLocked(Event{Kind: EventChannelOpen})
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.emitLocked(Event{Kind: EventMessage, Data: msg.Data})
	})

	dc.OnError(func(err error) {
		m.logger.Errorf("Data channel error: %v", err)
	})

	dc.OnClose(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.logger.Infof("Data channel '%s'-'%d' closed", dc.Label(), dc.ID())
		m.state.Channel = ChannelClosed
		m.emitLocked(Event{Kind: EventChannelClose})
	})
}

func (m *WebRTC) applyRemoteCandidatesLocked(candidates []signal.Candidate) error {
	for _, c := range candidates {
		mid := c.SDPMid
		mLineIndex := c.SDPMLineIndex
		init := webrtc.ICECandidateInit{
			Candidate:     c.Candidate,
			SDPMid:        &mid,
			SDPMLineIndex: &mLineIndex,
		}
		if err := m.pc.AddICECandidate(init); err != nil {
			return fmt.Errorf("failed to add remote candidate: %w", err)
		}
	}
	return nil
}

// emitLocked publishes an event with the current state snapshot. Caller
// holds the mutex. Events are dropped rather than blocking a pion
// callback if the subscriber falls far behind.
func (m *WebRTC) emitLocked(ev Event) {
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

func mapConnectivity(s webrtc.PeerConnectionState) ConnectivityStatus {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return ConnectivityNew
	case webrtc.PeerConnectionStateConnecting:
		return ConnectivityChecking
	case webrtc.PeerConnectionStateConnected:
		return ConnectivityConnected
	case webrtc.PeerConnectionStateFailed:
		return ConnectivityFailed
	case webrtc.PeerConnectionStateDisconnected:
		return ConnectivityDisconnected
	case webrtc.PeerConnectionStateClosed:
		return ConnectivityClosed
	default:
		return ConnectivityNew
	}
}
