package transport

import "github.com/rudransh-shrivastava/pairchat/internal/signal"

type EventKind int

const (
	EventCandidate EventKind = iota
	EventGatheringComplete
	EventConnectivityChange
	EventChannelOpen
	EventMessage
	EventChannelClose
)

func (k EventKind) String() string {
	switch k {
	case EventCandidate:
		return "CANDIDATE"
	case EventGatheringComplete:
		return "GATHERING_COMPLETE"
	case EventConnectivityChange:
		return "CONNECTIVITY_CHANGE"
	case EventChannelOpen:
		return "CHANNEL_OPEN"
	case EventMessage:
		return "MESSAGE"
	case EventChannelClose:
		return "CHANNEL_CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Event is one transport lifecycle notification. State carries the
// snapshot taken right after the event was applied, so a subscriber
// never has to call State() from inside its event loop.
type Event struct {
	Kind  EventKind
	State ConnectionState

	// Candidate is set for EventCandidate.
	Candidate *signal.Candidate
	// Data is set for EventMessage.
	Data []byte
}
