// wizard tracks the user-facing connection setup flow and reconciles it
// with the transport's own state. User actions move the wizard forward
// explicitly; two transitions fire automatically off transport
// snapshots (code ready once gathering completes, connected once the
// channel opens). Steps never regress except through Reset.
package wizard

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/pairchat/internal/transport"
)

// ErrInvalidAction is returned when a user action is not legal in the
// current step. The UI should have gated it; the machine rejects it
// without mutating anything.
var ErrInvalidAction = errors.New("action not valid in current step")

type Step int

const (
	StepWelcome Step = iota
	StepChooseRole
	StepGeneratingCode
	StepWaitingForConnection
	StepSharingCode
	StepWaitingForAnswer
	StepConnected
)

func (s Step) String() string {
	switch s {
	case StepWelcome:
		return "welcome"
	case StepChooseRole:
		return "choose_role"
	case StepGeneratingCode:
		return "generating_code"
	case StepWaitingForConnection:
		return "waiting_for_connection"
	case StepSharingCode:
		return "sharing_code"
	case StepWaitingForAnswer:
		return "waiting_for_answer"
	case StepConnected:
		return "connected"
	default:
		return "unknown"
	}
}

type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleJoiner
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleJoiner:
		return "joiner"
	default:
		return "none"
	}
}

type Machine struct {
	mu     sync.Mutex
	logger *logrus.Logger
	step   Step
	role   Role
}

func NewMachine(logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{logger: logger, step: StepWelcome}
}

func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func (m *Machine) Role() Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// Begin leaves the welcome screen. Explicit user action.
func (m *Machine) Begin() error {
	return m.advance(StepWelcome, StepChooseRole)
}

// PickHost commits to the host role. The caller is expected to start
// the transport's host negotiation alongside.
func (m *Machine) PickHost() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepChooseRole {
		return ErrInvalidAction
	}
	m.role = RoleHost
	m.setStepLocked(StepGeneratingCode)
	return nil
}

// PickJoiner commits to the joiner role. No transport action happens
// yet: the joiner's transport starts only once an offer is pasted.
func (m *Machine) PickJoiner() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepChooseRole {
		return ErrInvalidAction
	}
	m.role = RoleJoiner
	m.setStepLocked(StepWaitingForConnection)
	return nil
}

// CodeShared records that the host handed its code to the peer.
// Explicit user action, host only.
func (m *Machine) CodeShared() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role != RoleHost || m.step != StepSharingCode {
		return ErrInvalidAction
	}
	m.setStepLocked(StepWaitingForAnswer)
	return nil
}

// Observe reconciles the wizard with a transport snapshot. It must be
// called on every transport event: an open channel forces Connected no
// matter which step the wizard was on, so a transport racing ahead of
// the UI is never missed.
func (m *Machine) Observe(state transport.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state.Channel == transport.ChannelOpen {
		if m.step != StepConnected {
			m.setStepLocked(StepConnected)
		}
		return
	}

	if state.Gathering == transport.GatheringComplete {
		switch {
		case m.role == RoleHost && m.step == StepGeneratingCode:
			m.setStepLocked(StepSharingCode)
		case m.role == RoleJoiner && m.step == StepWaitingForConnection:
			// The joiner's answer code is ready to hand back.
			m.setStepLocked(StepSharingCode)
		}
	}
}

// Reset returns to the welcome screen and forgets the role. The owning
// session discards the transport and all session data alongside.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("Wizard reset")
	m.step = StepWelcome
	m.role = RoleNone
}

func (m *Machine) advance(from, to Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != from {
		return ErrInvalidAction
	}
	m.setStepLocked(to)
	return nil
}

func (m *Machine) setStepLocked(to Step) {
	m.logger.Infof("Wizard step: %s -> %s", m.step, to)
	m.step = to
}
