package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/pairchat/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:  `pairchat`,
	Long: `pairchat connects two peers directly over WebRTC, exchanging the connection codes by hand instead of through a signaling server`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pairchat connects two peers directly over WebRTC without a signaling server")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.NewLogger().Fatal(err)
	}
}

func init() {
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(joinCmd)
}
