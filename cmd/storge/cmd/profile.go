package cmd

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nfrund/storge/internal/app"
	"github.com/nfrund/storge/internal/chat/session"
	"github.com/nfrund/storge/internal/config"
)

var (
	profileBio    string
	profileStatus string
	profileAvatar string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your profile",
	Long: `Show your profile, or edit it with flags.

Examples:
  storge profile
  storge profile --status "out for lunch"
  storge profile --avatar ./me.png`,
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

		patch := map[string]any{}
		if cmd.Flags().Changed("bio") {
			patch["bio"] = profileBio
		}
		if cmd.Flags().Changed("status") {
			patch["status_message"] = profileStatus
		}
		if len(patch) > 0 {
			if _, err := a.Profiles.Update(cmd.Context(), sess.ParticipantID, patch); err != nil {
				return err
			}
		}

		if profileAvatar != "" {
			data, err := os.ReadFile(profileAvatar)
			if err != nil {
				return fmt.Errorf("read avatar file: %w", err)
			}
			contentType := mime.TypeByExtension(filepath.Ext(profileAvatar))
			if _, err := a.Profiles.UploadAvatar(cmd.Context(), sess.ParticipantID, data, contentType); err != nil {
				return err
			}
		}

		p, err := a.Profiles.Get(cmd.Context(), sess.ParticipantID)
		if err != nil {
			return err
		}
		fmt.Printf("Username: %s\n", p.Username)
		if p.StatusMessage != "" {
			fmt.Printf("Status:   %s\n", p.StatusMessage)
		}
		if p.Bio != "" {
			fmt.Printf("Bio:      %s\n", p.Bio)
		}
		if p.AvatarURL != "" {
			fmt.Printf("Avatar:   %s\n", p.AvatarURL)
		}
		return nil
	},
}

func init() {
	profileCmd.Flags().StringVar(&profileBio, "bio", "", "set your bio")
	profileCmd.Flags().StringVar(&profileStatus, "status", "", "set your status message")
	profileCmd.Flags().StringVar(&profileAvatar, "avatar", "", "upload a new avatar (png, jpeg or gif, 2 MB max)")
	rootCmd.AddCommand(profileCmd)
}
