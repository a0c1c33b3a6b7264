package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/vanish/internal/ui"
	"github.com/BioHazard786/vanish/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vanish",
	Short: "Ephemeral end-to-end encrypted chat for up to three peers",
	Long: `Vanish opens a small chat room between up to three people. Messages travel
over direct WebRTC data channels when they can and through the signaling
server when they cannot. Peers agree on keys so message bodies stay encrypted
end to end, and nothing is stored: leave the room and the conversation is gone.

Run "vanish serve" for the signaling server, then "vanish create" and
"vanish join" on each device.`,
	Version: version.String(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
