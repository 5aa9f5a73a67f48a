package cli

import (
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/pairchat/internal/logger"
	"github.com/rudransh-shrivastava/pairchat/internal/session"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "start a session and generate an invite code",
	Long:  `starts a new session as the host, prints the invite code to share with the peer, then waits for their answer code`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.NewLogger()
		s, err := session.New(session.Options{
			Factory: webrtcFactory(log),
			Logger:  log,
		})
		if err != nil {
			log.Fatal(err)
			return
		}
		defer s.Close()

		if err := s.Begin(); err != nil {
			log.Fatal(err)
			return
		}
		if err := s.StartAsHost(); err != nil {
			log.Fatal(err)
			return
		}
		if err := waitForGathering(s); err != nil {
			log.Fatal(err)
			return
		}
		code, err := s.Artifact()
		if err != nil {
			log.Fatal(err)
			return
		}
		shareCode(log, code)
		if err := s.CodeShared(); err != nil {
			log.Fatal(err)
			return
		}

		answer, err := readLine("Paste the answer code: ")
		if err != nil {
			log.Fatal(err)
			return
		}
		if err := s.AcceptAnswer(answer); err != nil {
			log.Fatal(err)
			return
		}
		if err := waitForConnected(s); err != nil {
			log.Fatal(err)
			return
		}
		runChat(s, log)
	},
}

func init() {
	hostCmd.Flags().BoolVar(&copyFlag, "copy", false, "copy the invite code to the clipboard")
	hostCmd.Flags().StringVar(&qrFlag, "qr", "", "write the invite code as a QR PNG to the given path")
}
