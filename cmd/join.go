package cmd

import (
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j"},
	Short:   "Join an existing chat room",
	Long: `Join a chat room someone else created.

Examples:
  vanish join quiet-fading-otter-harbor
  vanish join quiet-fading-otter-harbor --relay-only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(args[0], false)
	},
}

func init() {
	addClientFlags(joinCmd)
	rootCmd.AddCommand(joinCmd)
}
