package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/storge/internal/app"
	"github.com/nfrund/storge/internal/chat/session"
	"github.com/nfrund/storge/internal/config"
	"github.com/nfrund/storge/internal/domain"
)

var roomsCreateDirect bool

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List or create rooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rooms you are a member of",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession()
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context(), config.MustNew(), session.Participant{
			ID:          sess.ParticipantID,
			DisplayName: sess.Username,
		})
		if err != nil {
			return err
		}
		defer a.Shutdown(cmd.Context())

		rooms, err := a.Rooms.List(cmd.Context(), sess.ParticipantID)
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Println("No rooms yet. Create one with \"storge rooms create <name>\".")
			return nil
		}
		for _, r := range rooms {
			fmt.Printf("%-24s  %s  (%s)\n", r.ID, r.DisplayName(), r.Type)
		}
		return nil
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a room and join it",
	Long: `Create a room and enroll yourself as its first member.

Examples:
  storge rooms create "design talk"
  storge rooms create --direct        # an unnamed direct chat`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession()
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		roomType := domain.RoomTypeGroup
		if roomsCreateDirect {
			roomType = domain.RoomTypeDirect
		}

		a, err := app.New(cmd.Context(), config.MustNew(), session.Participant{
			ID:          sess.ParticipantID,
			DisplayName: sess.Username,
		})
		if err != nil {
			return err
		}
		defer a.Shutdown(cmd.Context())

		room, err := a.Rooms.Create(cmd.Context(), name, roomType, sess.ParticipantID)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", room.DisplayName(), room.ID)
		return nil
	},
}

func init() {
	roomsCreateCmd.Flags().BoolVar(&roomsCreateDirect, "direct", false, "create a direct chat instead of a group")
	roomsCmd.AddCommand(roomsListCmd)
	roomsCmd.AddCommand(roomsCreateCmd)
	rootCmd.AddCommand(roomsCmd)
}
