package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BioHazard786/vanish/internal/room"
)

var createCmd = &cobra.Command{
	Use:     "create [room-id]",
	Aliases: []string{"c", "new"},
	Short:   "Create a chat room and wait for others",
	Long: `Create a chat room and wait for up to two others to join. Without a room
ID a random one is generated. Creating a room that already exists joins it.

Examples:
  vanish create
  vanish create quiet-fading-otter-harbor
  vanish create --delete-after 30s --server chat.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := room.NewID()
		if len(args) == 1 {
			roomID = args[0]
		}
		return runChat(roomID, true)
	},
}

func init() {
	addClientFlags(createCmd)
	rootCmd.AddCommand(createCmd)
}
