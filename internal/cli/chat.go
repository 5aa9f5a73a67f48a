package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/pairchat/internal/chat"
	"github.com/rudransh-shrivastava/pairchat/internal/session"
	"github.com/rudransh-shrivastava/pairchat/internal/transport"
)

// runChat is the interactive loop both commands land in once the data
// channel is open. It returns when the user quits or the peer goes away.
func runChat(s *session.Session, log *logrus.Logger) {
	fmt.Println("Connected. Type a message, or /help for commands.")

	done := make(chan struct{})
	go printNotifications(s, log, done)

	for {
		input, err := readLine("> ")
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)

		switch {
		case input == "":
			continue

		case input == "/quit":
			close(done)
			return

		case input == "/help":
			printHelp()

		case input == "/reset":
			s.Reset()
			fmt.Println("Session reset, connection dropped.")
			close(done)
			return

		case strings.HasPrefix(input, "/send "):
			path := strings.TrimSpace(strings.TrimPrefix(input, "/send "))
			if err := sendFile(s, path); err != nil {
				log.Errorf("Failed to send %s: %v", path, err)
			}

		default:
			if _, err := s.SendText(input); err != nil {
				log.Errorf("Failed to send message: %v", err)
			}
		}
	}
	close(done)
}

func printNotifications(s *session.Session, log *logrus.Logger, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case n := <-s.Notifications():
			switch n.Kind {
			case session.NotifyMessage:
				if n.Message.Sender == chat.SenderRemote {
					fmt.Printf("\rpeer: %s\n> ", n.Message.Content)
				}
			case session.NotifyFile:
				if err := saveFile(n.File); err != nil {
					log.Errorf("Failed to save received file: %v", err)
					continue
				}
				fmt.Printf("\rreceived file %s (%d bytes)\n> ", n.File.Name, len(n.File.Data))
			case session.NotifyState:
				if n.State.Channel == transport.ChannelClosed {
					fmt.Println("\rPeer disconnected. /quit to exit.")
					return
				}
			}
		}
	}
}

func sendFile(s *session.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var bar *progressbar.ProgressBar
	return s.SendFile(filepath.Base(path), data, func(sent, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "sending")
		}
		bar.Set(sent)
	})
}

// saveFile writes a received file into the working directory. Only the
// base name is kept, a peer cannot pick the destination directory.
func saveFile(f *session.ReceivedFile) error {
	name := filepath.Base(f.Name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		name = "received.bin"
	}
	return os.WriteFile(name, f.Data, 0644)
}

func printHelp() {
	fmt.Println("  /send <path>  send a file to the peer")
	fmt.Println("  /reset        drop the connection and exit")
	fmt.Println("  /quit         exit")
}
