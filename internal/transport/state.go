package transport

import "github.com/rudransh-shrivastava/pairchat/internal/signal"

type GatheringStatus int

const (
	GatheringNotStarted GatheringStatus = iota
	GatheringInProgress
	GatheringComplete
)

func (s GatheringStatus) String() string {
	switch s {
	case GatheringNotStarted:
		return "not_started"
	case GatheringInProgress:
		return "in_progress"
	case GatheringComplete:
		return "complete"
	default:
		return "unknown"
	}
}

type ConnectivityStatus int

const (
	ConnectivityNew ConnectivityStatus = iota
	ConnectivityChecking
	ConnectivityConnected
	ConnectivityFailed
	ConnectivityDisconnected
	ConnectivityClosed
)

func (s ConnectivityStatus) String() string {
	switch s {
	case ConnectivityNew:
		return "new"
	case ConnectivityChecking:
		return "checking"
	case ConnectivityConnected:
		return "connected"
	case ConnectivityFailed:
		return "failed"
	case ConnectivityDisconnected:
		return "disconnected"
	case ConnectivityClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type ChannelStatus int

const (
	ChannelConnecting ChannelStatus = iota
	ChannelOpen
	ChannelClosing
	ChannelClosed
)

func (s ChannelStatus) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosing:
		return "closing"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionState is a point-in-time snapshot of the transport:
// candidate gathering progress, connectivity checks, channel status and
// every candidate gathered so far. Snapshots are values; mutating one
// never affects the manager that produced it.
type ConnectionState struct {
	Gathering    GatheringStatus
	Connectivity ConnectivityStatus
	Channel      ChannelStatus
	Candidates   []signal.Candidate
}

func (s ConnectionState) clone() ConnectionState {
	out := s
	out.Candidates = make([]signal.Candidate, len(s.Candidates))
	copy(out.Candidates, s.Candidates)
	return out
}

// AppendCandidate adds a candidate to the list unless an identical one
// is already present. Candidates have set semantics: duplicates are
// harmless but should not be resent.
func AppendCandidate(candidates []signal.Candidate, c signal.Candidate) []signal.Candidate {
	for _, existing := range candidates {
		if existing == c {
			return candidates
		}
	}
	return append(candidates, c)
}
