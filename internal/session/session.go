// session is the single owner of one live connection attempt: the
// transport manager, the wizard machine, the chat log and the chunk
// assembler all hang off it. Transport events are consumed on one
// goroutine and re-published to the UI as discrete notifications, so
// the UI never holds a mutable handle into session internals.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/pairchat/internal/chat"
	"github.com/rudransh-shrivastava/pairchat/internal/chunker"
	"github.com/rudransh-shrivastava/pairchat/internal/protocol"
	"github.com/rudransh-shrivastava/pairchat/internal/transport"
	"github.com/rudransh-shrivastava/pairchat/internal/wizard"
)

const notificationBufferSize = 128

type NotificationKind int

const (
	// NotifyState signals a wizard step or transport state change.
	NotifyState NotificationKind = iota
	// NotifyMessage signals a new remote chat message.
	NotifyMessage
	// NotifyFile signals a completed incoming file transfer.
	NotifyFile
)

type ReceivedFile struct {
	Name string
	Data []byte
}

// Notification is one discrete state-change message for the UI. Step
// and State are always populated.
type Notification struct {
	Kind    NotificationKind
	Step    wizard.Step
	State   transport.ConnectionState
	Message *chat.Message
	File    *ReceivedFile
}

// Factory builds a fresh transport manager. Reset discards the old
// manager and calls this for its replacement.
type Factory func() transport.Manager

type Options struct {
	Factory Factory
	Logger  *logrus.Logger
	// ChunkSize overrides chunker.DefaultChunkSize for outgoing files.
	ChunkSize int
}

type Session struct {
	mu        sync.Mutex
	logger    *logrus.Logger
	factory   Factory
	chunkSize int
	codec     *protocol.Codec

	manager   transport.Manager
	machine   *wizard.Machine
	chatLog   *chat.Session
	assembler *chunker.Assembler

	// transferNames maps in-flight transfer ids to their offered file
	// names. Discarded with the rest of the session state on reset.
	transferNames map[uuid.UUID]string

	notifications chan Notification
	closed        bool
}

func New(opts Options) (*Session, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("factory is required")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkSize
	}

	s := &Session{
		logger:        log,
		factory:       opts.Factory,
		chunkSize:     chunkSize,
		codec:         protocol.NewCodec(),
		machine:       wizard.NewMachine(log),
		notifications: make(chan Notification, notificationBufferSize),
	}
	s.installManagerLocked(opts.Factory())
	return s, nil
}

// installManagerLocked wires a fresh manager with fresh chat and
// transfer state and starts its event loop. Caller holds the mutex or
// is the constructor.
func (s *Session) installManagerLocked(mgr transport.Manager) {
	s.manager = mgr
	s.assembler = chunker.NewAssembler(s.logger)
	s.transferNames = make(map[uuid.UUID]string)
	s.chatLog = chat.NewSession(
		func(data []byte) error { return s.sendFrame(mgr, &protocol.ChatFrame{Text: string(data)}) },
		func() bool { return mgr.State().Channel == transport.ChannelOpen },
		s.logger,
	)
	go s.eventLoop(mgr)
}

// eventLoop drains one manager's event stream until it closes. Events
// from a manager that has since been replaced by Reset are ignored.
func (s *Session) eventLoop(mgr transport.Manager) {
	for ev := range mgr.Events() {
		s.mu.Lock()
		live := s.manager == mgr
		chatLog := s.chatLog
		assembler := s.assembler
		s.mu.Unlock()
		if !live {
			continue
		}

		if ev.Kind == transport.EventMessage {
			s.handleFrame(ev.Data, chatLog, assembler)
			continue
		}

		s.machine.Observe(ev.State)
		s.notify(Notification{Kind: NotifyState, Step: s.machine.Step(), State: ev.State})
	}
}

func (s *Session) handleFrame(data []byte, chatLog *chat.Session, assembler *chunker.Assembler) {
	frame, err := s.codec.DecodeFromBytes(data)
	if err != nil {
		s.logger.Warnf("Dropping undecodable frame (%d bytes): %v", len(data), err)
		return
	}

	switch f := frame.(type) {
	case *protocol.ChatFrame:
		msg := chatLog.Receive(f.Text)
		s.notify(Notification{
			Kind:    NotifyMessage,
			Step:    s.machine.Step(),
			State:   s.State(),
			Message: &msg,
		})

	case *protocol.FileOfferFrame:
		s.logger.Infof("Incoming file %q (%d bytes, %d chunks)", f.Name, f.Size, f.TotalChunks)
		s.mu.Lock()
		s.transferNames[f.TransferID] = f.Name
		s.mu.Unlock()

	case *protocol.FileChunkFrame:
		payload, done := assembler.Ingest(chunker.Chunk{
			TransferID: f.TransferID,
			Index:      f.Index,
			Total:      f.Total,
			Data:       f.Data,
		})
		if !done {
			return
		}
		s.mu.Lock()
		name, ok := s.transferNames[f.TransferID]
		delete(s.transferNames, f.TransferID)
		s.mu.Unlock()
		if !ok {
			name = "received.bin"
		}
		s.logger.Infof("Completed incoming transfer %q (%d bytes)", name, len(payload))
		s.notify(Notification{
			Kind:  NotifyFile,
			Step:  s.machine.Step(),
			State: s.State(),
			File:  &ReceivedFile{Name: name, Data: payload},
		})

	default:
		s.logger.Warnf("Dropping frame of unknown kind %s", frame.Kind())
	}
}

func (s *Session) sendFrame(mgr transport.Manager, frame protocol.Frame) error {
	data, err := s.codec.EncodeToBytes(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return mgr.Send(data)
}

func (s *Session) notify(n Notification) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.notifications <- n:
	default:
		s.logger.Warnf("Notification buffer full, dropping %d", n.Kind)
	}
}

// Begin leaves the welcome screen.
func (s *Session) Begin() error {
	if err := s.machine.Begin(); err != nil {
		return err
	}
	s.notifyState()
	return nil
}

// StartAsHost commits to the host role and starts negotiation. The
// wizard only moves once the transport accepted the start.
func (s *Session) StartAsHost() error {
	if s.machine.Step() != wizard.StepChooseRole {
		return wizard.ErrInvalidAction
	}
	if err := s.currentManager().StartAsHost(); err != nil {
		return err
	}
	if err := s.machine.PickHost(); err != nil {
		return err
	}
	s.observeNow()
	return nil
}

// PickJoiner commits to the joiner role. The transport stays untouched
// until an offer is pasted.
func (s *Session) PickJoiner() error {
	if err := s.machine.PickJoiner(); err != nil {
		return err
	}
	s.notifyState()
	return nil
}

// AcceptOffer consumes the host's pasted artifact.
func (s *Session) AcceptOffer(artifact string) error {
	if s.machine.Role() != wizard.RoleJoiner {
		return wizard.ErrInvalidAction
	}
	if err := s.currentManager().AcceptOffer(artifact); err != nil {
		return err
	}
	s.observeNow()
	return nil
}

// AcceptAnswer consumes the joiner's pasted artifact. Preconditions are
// the transport's: a fresh or non-host manager rejects it.
func (s *Session) AcceptAnswer(artifact string) error {
	if err := s.currentManager().AcceptAnswer(artifact); err != nil {
		return err
	}
	s.observeNow()
	return nil
}

// CodeShared records that the host handed over its code.
func (s *Session) CodeShared() error {
	if err := s.machine.CodeShared(); err != nil {
		return err
	}
	s.notifyState()
	return nil
}

// Artifact returns the encoded local artifact for sharing.
func (s *Session) Artifact() (string, error) {
	return s.currentManager().LocalArtifact()
}

// SendText sends one chat message and returns the local echo.
func (s *Session) SendText(text string) (chat.Message, error) {
	s.mu.Lock()
	chatLog := s.chatLog
	s.mu.Unlock()
	return chatLog.Send(text)
}

// SendFile chunks the payload and streams it over the channel, with an
// offer frame first so the peer knows the name. progress may be nil.
func (s *Session) SendFile(name string, payload []byte, progress func(sent, total int)) error {
	s.mu.Lock()
	mgr := s.manager
	s.mu.Unlock()

	if mgr.State().Channel != transport.ChannelOpen {
		return fmt.Errorf("%w: channel is not open", transport.ErrInvalidState)
	}

	chunks, err := chunker.Split(payload, s.chunkSize)
	if err != nil {
		return err
	}

	offer := &protocol.FileOfferFrame{
		TransferID:  chunks[0].TransferID,
		Name:        name,
		Size:        uint64(len(payload)),
		TotalChunks: uint32(len(chunks)),
	}
	if err := s.sendFrame(mgr, offer); err != nil {
		return fmt.Errorf("failed to send file offer: %w", err)
	}

	for i, c := range chunks {
		if err := s.sendFrame(mgr, &protocol.FileChunkFrame{
			TransferID: c.TransferID,
			Index:      c.Index,
			Total:      c.Total,
			Data:       c.Data,
		}); err != nil {
			return fmt.Errorf("failed to send chunk %d: %w", c.Index, err)
		}
		if progress != nil {
			progress(i+1, len(chunks))
		}
	}
	s.logger.Infof("Sent file %q in %d chunks", name, len(chunks))
	return nil
}

func (s *Session) Step() wizard.Step {
	return s.machine.Step()
}

func (s *Session) Role() wizard.Role {
	return s.machine.Role()
}

func (s *Session) State() transport.ConnectionState {
	return s.currentManager().State()
}

// Messages returns a copy of the ordered chat log.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	chatLog := s.chatLog
	s.mu.Unlock()
	return chatLog.Messages()
}

// Notifications is the UI subscription point. The channel stays open
// for the session's whole lifetime, across resets; after Close no
// further notifications arrive.
func (s *Session) Notifications() <-chan Notification {
	return s.notifications
}

// Reset discards the whole session: chat log, transfer state, wizard
// and manager are replaced in one critical section, so no stale log
// ever pairs with a fresh transport and concurrent Resets each close
// exactly the manager they displaced. Events the old manager emits
// before its Close land on a stale manager and are ignored.
func (s *Session) Reset() {
	s.mu.Lock()
	old := s.manager
	s.machine.Reset()
	s.installManagerLocked(s.factory())
	s.mu.Unlock()
	old.Close()

	s.logger.Info("Session reset")
	s.notifyState()
}

// Close releases the session permanently.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	mgr := s.manager
	s.mu.Unlock()
	return mgr.Close()
}

func (s *Session) currentManager() transport.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager
}

// observeNow pushes the current transport snapshot through the wizard
// immediately instead of waiting for the next event, then notifies.
func (s *Session) observeNow() {
	state := s.currentManager().State()
	s.machine.Observe(state)
	s.notify(Notification{Kind: NotifyState, Step: s.machine.Step(), State: state})
}

func (s *Session) notifyState() {
	s.notify(Notification{Kind: NotifyState, Step: s.machine.Step(), State: s.State()})
}
