// transport owns the live peer connection and its data channel. A
// Manager is created per session, driven through a strict offer/answer
// sequence by the wizard, and observed through an event stream. Nothing
// here blocks: negotiation calls return immediately and the
// asynchronous parts (candidate gathering, connectivity checks, channel
// open) surface as Events.
package transport

import "errors"

var (
	// ErrInvalidState is returned when an operation is invoked in a
	// manager state where it is not legal. The UI is expected to gate
	// these calls; the manager still rejects them rather than corrupt
	// its state.
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrAlreadyStarted is returned by a second StartAsHost call.
	ErrAlreadyStarted = errors.New("negotiation already started")
	// ErrInvalidOffer is returned when a pasted offer cannot be used.
	ErrInvalidOffer = errors.New("invalid offer")
	// ErrInvalidAnswer is returned when a pasted answer cannot be used.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("manager is closed")
)

// Phase is the manager's negotiation lifecycle state. It gates which
// operations are legal; the network-level progress lives in
// ConnectionState.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseNegotiationStarted
	PhaseOfferReady
	PhaseAnswerReady
	PhaseNegotiating
	PhaseChannelOpen
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseNegotiationStarted:
		return "negotiation_started"
	case PhaseOfferReady:
		return "offer_ready"
	case PhaseAnswerReady:
		return "answer_ready"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseChannelOpen:
		return "channel_open"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Manager negotiates and owns one peer connection. Exactly one Manager
// is live per session; replacing it is the session's Reset. A Manager
// serves one role for its lifetime: a host calls StartAsHost then
// AcceptAnswer, a joiner calls AcceptOffer.
type Manager interface {
	// StartAsHost creates the local offer and begins candidate
	// gathering. Calling it twice returns ErrAlreadyStarted.
	StartAsHost() error

	// AcceptOffer consumes the host's pasted artifact, produces the
	// local answer and begins candidate gathering. Only legal on a
	// fresh manager.
	AcceptOffer(artifact string) error

	// AcceptAnswer consumes the joiner's pasted artifact and applies
	// it. Only legal on a host that already started.
	AcceptAnswer(artifact string) error

	// LocalArtifact encodes the local description plus the candidates
	// gathered so far. Sharing before gathering completes is allowed
	// but degraded: candidates found later never reach the peer.
	LocalArtifact() (string, error)

	// Send transmits one message over the open channel. Returns
	// ErrInvalidState while the channel is not open.
	Send(data []byte) error

	// State returns a snapshot of the transport's current state.
	State() ConnectionState

	// Phase returns the negotiation lifecycle state.
	Phase() Phase

	// Events returns the lifecycle event stream. The channel is closed
	// when the manager is closed.
	Events() <-chan Event

	// Close releases the transport. Idempotent.
	Close() error
}
