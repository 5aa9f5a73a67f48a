// chat keeps the ordered message log for one session. Messages are
// immutable once appended; the log lives exactly as long as the session
// and is discarded wholesale on reset.
package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrDisabled is returned by Send while the channel is not open.
var ErrDisabled = errors.New("chat is not enabled")

type Sender int

const (
	SenderLocal Sender = iota
	SenderRemote
)

func (s Sender) String() string {
	if s == SenderLocal {
		return "me"
	}
	return "peer"
}

type Message struct {
	ID        uuid.UUID
	Sender    Sender
	Content   string
	Timestamp time.Time
}

// SendFunc forwards outgoing bytes to the transport. The session wires
// this to the manager so chat never touches transport internals.
type SendFunc func([]byte) error

// EnabledFunc reports whether the channel is currently open.
type EnabledFunc func() bool

type Session struct {
	mu       sync.Mutex
	logger   *logrus.Logger
	send     SendFunc
	enabled  EnabledFunc
	messages []Message
}

func NewSession(send SendFunc, enabled EnabledFunc, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{logger: logger, send: send, enabled: enabled}
}

// Send appends a local message and forwards it to the peer. The local
// echo is optimistic: there is no delivery acknowledgement, matching
// the transport's fire-and-forget contract. If forwarding fails the
// echo is rolled back and the error returned.
func (s *Session) Send(text string) (Message, error) {
	if !s.enabled() {
		return Message{}, ErrDisabled
	}

	msg := Message{
		ID:        uuid.New(),
		Sender:    SenderLocal,
		Content:   text,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	if err := s.send([]byte(text)); err != nil {
		s.logger.Warnf("Failed to send chat message: %v", err)
		s.removeByID(msg.ID)
		return Message{}, err
	}
	return msg, nil
}

// removeByID drops exactly the given message. Remote messages may have
// arrived while the mutex was released around the forward, so rolling
// back the echo must target it by identity, not by position.
func (s *Session) removeByID(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// Receive appends a remote message. Ordering is receipt order; the
// transport delivers in first-in-first-out order on its single stream.
func (s *Session) Receive(text string) Message {
	msg := Message{
		ID:        uuid.New(),
		Sender:    SenderRemote,
		Content:   text,
		Timestamp: time.Now(),
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg
}

// Messages returns a copy of the ordered log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
