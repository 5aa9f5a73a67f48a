package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/pairchat/internal/qr"
	"github.com/rudransh-shrivastava/pairchat/internal/session"
	"github.com/rudransh-shrivastava/pairchat/internal/transport"
	"github.com/rudransh-shrivastava/pairchat/internal/wizard"
)

const (
	gatheringTimeout = 30 * time.Second
	connectTimeout   = 2 * time.Minute
)

var (
	copyFlag bool
	qrFlag   string
)

var stdin = bufio.NewScanner(os.Stdin)

func webrtcFactory(log *logrus.Logger) session.Factory {
	return func() transport.Manager {
		return transport.NewWebRTC(transport.Options{Logger: log})
	}
}

func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	if !stdin.Scan() {
		if err := stdin.Err(); err != nil {
			return "", err
		}
		return "", errors.New("stdin closed")
	}
	return stdin.Text(), nil
}

// waitForGathering blocks until the local code is ready to share.
func waitForGathering(s *session.Session) error {
	if s.State().Gathering == transport.GatheringComplete {
		return nil
	}
	deadline := time.After(gatheringTimeout)
	for {
		select {
		case n := <-s.Notifications():
			if n.State.Gathering == transport.GatheringComplete {
				return nil
			}
		case <-deadline:
			return errors.New("timed out gathering connection candidates")
		}
	}
}

// waitForConnected blocks until the data channel opens on both ends.
func waitForConnected(s *session.Session) error {
	if s.Step() == wizard.StepConnected {
		return nil
	}
	deadline := time.After(connectTimeout)
	for {
		select {
		case n := <-s.Notifications():
			if n.Step == wizard.StepConnected {
				return nil
			}
			if n.State.Connectivity == transport.ConnectivityFailed {
				return errors.New("connection failed, both peers may be behind symmetric NATs")
			}
		case <-deadline:
			return errors.New("timed out waiting for the connection")
		}
	}
}

// shareCode prints the code and honors the --copy and --qr flags.
func shareCode(log *logrus.Logger, code string) {
	fmt.Println("Share this code with your peer:")
	fmt.Println()
	fmt.Println(code)
	fmt.Println()
	if copyFlag {
		if err := clipboard.WriteAll(code); err != nil {
			log.Warnf("Failed to copy to clipboard: %v", err)
		} else {
			fmt.Println("(copied to clipboard)")
		}
	}
	if qrFlag != "" {
		if err := qr.WriteFile(code, qr.DefaultSize, qrFlag); err != nil {
			log.Warnf("Failed to write QR code: %v", err)
		} else {
			fmt.Printf("(QR code written to %s)\n", qrFlag)
		}
	}
}
