package session

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/pairchat/internal/chat"
	"github.com/rudransh-shrivastava/pairchat/internal/transport"
	"github.com/rudransh-shrivastava/pairchat/internal/wizard"
)

func nopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// presetFactory hands out the given manager once, then fresh unlinked
// memory managers for any session reset that follows.
func presetFactory(first transport.Manager, log *logrus.Logger) Factory {
	var mu sync.Mutex
	used := false
	return func() transport.Manager {
		mu.Lock()
		defer mu.Unlock()
		if !used {
			used = true
			return first
		}
		m, _ := transport.NewMemoryPair(log)
		return m
	}
}

func newPair(t *testing.T, chunkSize int) (*Session, *Session) {
	t.Helper()
	log := nopLogger()
	hostMgr, joinMgr := transport.NewMemoryPair(log)

	host, err := New(Options{Factory: presetFactory(hostMgr, log), Logger: log, ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("New host session failed: %v", err)
	}
	join, err := New(Options{Factory: presetFactory(joinMgr, log), Logger: log, ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("New joiner session failed: %v", err)
	}
	t.Cleanup(func() {
		host.Close()
		join.Close()
	})
	return host, join
}

// waitFor drains notifications until pred returns true or the deadline
// passes.
func waitFor(t *testing.T, s *Session, what string, pred func(Notification) bool) Notification {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-s.Notifications():
			if pred(n) {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s (step %s)", what, s.Step())
			return Notification{}
		}
	}
}

// connect walks both sessions through the full wizard to Connected.
func connect(t *testing.T, host, join *Session) {
	t.Helper()

	if err := host.Begin(); err != nil {
		t.Fatalf("host Begin failed: %v", err)
	}
	if err := host.StartAsHost(); err != nil {
		t.Fatalf("StartAsHost failed: %v", err)
	}
	offer, err := host.Artifact()
	if err != nil {
		t.Fatalf("host Artifact failed: %v", err)
	}

	if err := join.Begin(); err != nil {
		t.Fatalf("joiner Begin failed: %v", err)
	}
	if err := join.PickJoiner(); err != nil {
		t.Fatalf("PickJoiner failed: %v", err)
	}
	if err := join.AcceptOffer(offer); err != nil {
		t.Fatalf("AcceptOffer failed: %v", err)
	}
	answer, err := join.Artifact()
	if err != nil {
		t.Fatalf("joiner Artifact failed: %v", err)
	}

	if err := host.CodeShared(); err != nil {
		t.Fatalf("CodeShared failed: %v", err)
	}
	if err := host.AcceptAnswer(answer); err != nil {
		t.Fatalf("AcceptAnswer failed: %v", err)
	}

	if host.Step() != wizard.StepConnected {
		waitFor(t, host, "host connected", func(n Notification) bool {
			return n.Step == wizard.StepConnected
		})
	}
	if join.Step() != wizard.StepConnected {
		waitFor(t, join, "joiner connected", func(n Notification) bool {
			return n.Step == wizard.StepConnected
		})
	}
}

func TestHappyPath(t *testing.T) {
	host, join := newPair(t, 0)
	connect(t, host, join)

	if got := host.State().Channel; got != transport.ChannelOpen {
		t.Errorf("host channel: expected open, got %s", got)
	}
	if got := join.State().Channel; got != transport.ChannelOpen {
		t.Errorf("joiner channel: expected open, got %s", got)
	}

	if _, err := host.SendText("hi"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	n := waitFor(t, join, "chat message", func(n Notification) bool {
		return n.Kind == NotifyMessage
	})
	if n.Message.Content != "hi" {
		t.Errorf("expected %q, got %q", "hi", n.Message.Content)
	}
	if n.Message.Sender != chat.SenderRemote {
		t.Errorf("expected remote sender, got %s", n.Message.Sender)
	}

	log := join.Messages()
	if len(log) != 1 || log[0].Content != "hi" {
		t.Errorf("unexpected joiner log: %+v", log)
	}
	// The host keeps its optimistic local echo.
	log = host.Messages()
	if len(log) != 1 || log[0].Sender != chat.SenderLocal {
		t.Errorf("unexpected host log: %+v", log)
	}
}

func TestWizardProgression(t *testing.T) {
	host, join := newPair(t, 0)

	if host.Step() != wizard.StepWelcome {
		t.Errorf("expected welcome, got %s", host.Step())
	}
	if err := host.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := host.StartAsHost(); err != nil {
		t.Fatalf("StartAsHost failed: %v", err)
	}
	// The memory transport gathers synchronously, so the code is
	// already shareable.
	if host.Step() != wizard.StepSharingCode {
		t.Errorf("expected sharing_code, got %s", host.Step())
	}
	if host.Role() != wizard.RoleHost {
		t.Errorf("expected host role, got %s", host.Role())
	}

	if err := join.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := join.PickJoiner(); err != nil {
		t.Fatalf("PickJoiner failed: %v", err)
	}
	if join.Step() != wizard.StepWaitingForConnection {
		t.Errorf("expected waiting_for_connection, got %s", join.Step())
	}
}

func TestSendTextBeforeConnected(t *testing.T) {
	host, _ := newPair(t, 0)

	if _, err := host.SendText("too early"); !errors.Is(err, chat.ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestStartAsHostRequiresChooseRole(t *testing.T) {
	host, _ := newPair(t, 0)

	if err := host.StartAsHost(); !errors.Is(err, wizard.ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
}

func TestAcceptOfferRequiresJoinerRole(t *testing.T) {
	host, join := newPair(t, 0)

	if err := host.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := host.StartAsHost(); err != nil {
		t.Fatalf("StartAsHost failed: %v", err)
	}
	offer, err := host.Artifact()
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}

	// The joiner session rejects an offer before the role is picked.
	if err := join.AcceptOffer(offer); !errors.Is(err, wizard.ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
}

func TestAcceptOfferGarbageLeavesStateAlone(t *testing.T) {
	_, join := newPair(t, 0)

	if err := join.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := join.PickJoiner(); err != nil {
		t.Fatalf("PickJoiner failed: %v", err)
	}

	err := join.AcceptOffer("complete garbage")
	if !errors.Is(err, transport.ErrInvalidOffer) {
		t.Errorf("expected ErrInvalidOffer, got %v", err)
	}
	if join.Step() != wizard.StepWaitingForConnection {
		t.Errorf("failed decode moved the wizard to %s", join.Step())
	}
	if join.State().Gathering != transport.GatheringNotStarted {
		t.Error("failed decode touched the transport")
	}
}

func TestResetMidNegotiation(t *testing.T) {
	host, join := newPair(t, 0)

	if err := host.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := host.StartAsHost(); err != nil {
		t.Fatalf("StartAsHost failed: %v", err)
	}
	offer, err := host.Artifact()
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}
	if err := join.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := join.PickJoiner(); err != nil {
		t.Fatalf("PickJoiner failed: %v", err)
	}
	if err := join.AcceptOffer(offer); err != nil {
		t.Fatalf("AcceptOffer failed: %v", err)
	}
	answer, err := join.Artifact()
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}

	host.Reset()

	// The new manager has no memory of the discarded negotiation.
	if err := host.AcceptAnswer(answer); !errors.Is(err, transport.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if host.Step() != wizard.StepWelcome {
		t.Errorf("expected welcome after reset, got %s", host.Step())
	}
	if host.Role() != wizard.RoleNone {
		t.Errorf("expected no role after reset, got %s", host.Role())
	}
	if len(host.Messages()) != 0 {
		t.Error("reset kept the message log")
	}
}

func TestResetDiscardsChatLog(t *testing.T) {
	host, join := newPair(t, 0)
	connect(t, host, join)

	if _, err := host.SendText("before reset"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	waitFor(t, join, "chat message", func(n Notification) bool {
		return n.Kind == NotifyMessage
	})

	host.Reset()
	if len(host.Messages()) != 0 {
		t.Error("reset kept the message log")
	}
	if host.State().Channel == transport.ChannelOpen {
		t.Error("reset kept an open channel")
	}

	// The peer observes the teardown as a channel close, not an error.
	waitFor(t, join, "channel close", func(n Notification) bool {
		return n.State.Channel == transport.ChannelClosed
	})

	// The session is usable again after a reset.
	if err := host.Begin(); err != nil {
		t.Errorf("Begin after reset failed: %v", err)
	}
}

func TestConcurrentResetsCloseEveryDisplacedManager(t *testing.T) {
	log := nopLogger()

	var mu sync.Mutex
	var created []transport.Manager
	factory := func() transport.Manager {
		m, _ := transport.NewMemoryPair(log)
		mu.Lock()
		created = append(created, m)
		mu.Unlock()
		return m
	}

	s, err := New(Options{Factory: factory, Logger: log})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Reset()
		}()
	}
	wg.Wait()

	live := s.currentManager()
	mu.Lock()
	defer mu.Unlock()
	if len(created) != 9 {
		t.Fatalf("expected 9 managers (initial + one per reset), got %d", len(created))
	}
	// Every displaced manager must have been closed, which closes its
	// event channel. These managers never negotiated, so the first
	// receive reports the close.
	for i, m := range created {
		if m == live {
			continue
		}
		select {
		case _, ok := <-m.Events():
			if ok {
				t.Errorf("manager %d emitted an event instead of closing", i)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("manager %d was never closed", i)
		}
	}
}

func TestFileTransfer(t *testing.T) {
	host, join := newPair(t, 8)
	connect(t, host, join)

	payload := []byte("this payload spans several eight byte chunks")
	var calls []int
	err := host.SendFile("notes.txt", payload, func(sent, total int) {
		calls = append(calls, sent)
	})
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}

	n := waitFor(t, join, "file", func(n Notification) bool {
		return n.Kind == NotifyFile
	})
	if n.File.Name != "notes.txt" {
		t.Errorf("expected notes.txt, got %q", n.File.Name)
	}
	if !bytes.Equal(n.File.Data, payload) {
		t.Errorf("payload mismatch: got %q", n.File.Data)
	}

	expectedChunks := (len(payload) + 7) / 8
	if len(calls) != expectedChunks {
		t.Errorf("expected %d progress calls, got %d", expectedChunks, len(calls))
	}
	if len(calls) > 0 && calls[len(calls)-1] != expectedChunks {
		t.Errorf("final progress call was %d of %d", calls[len(calls)-1], expectedChunks)
	}
}

func TestSendFileBeforeConnected(t *testing.T) {
	host, _ := newPair(t, 0)

	err := host.SendFile("f.bin", []byte("data"), nil)
	if !errors.Is(err, transport.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
