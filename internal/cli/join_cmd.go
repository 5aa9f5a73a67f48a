package cli

import (
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/pairchat/internal/logger"
	"github.com/rudransh-shrivastava/pairchat/internal/session"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "join a session using a host's invite code",
	Long:  `joins an existing session: paste the host's invite code, then share the generated answer code back with the host`,
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
		if err := s.PickJoiner(); err != nil {
			log.Fatal(err)
			return
		}

		offer, err := readLine("Paste the invite code: ")
		if err != nil {
			log.Fatal(err)
			return
		}
		if err := s.AcceptOffer(offer); err != nil {
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

		if err := waitForConnected(s); err != nil {
			log.Fatal(err)
			return
		}
		runChat(s, log)
	},
}

func init() {
	joinCmd.Flags().BoolVar(&copyFlag, "copy", false, "copy the answer code to the clipboard")
	joinCmd.Flags().StringVar(&qrFlag, "qr", "", "write the answer code as a QR PNG to the given path")
}
