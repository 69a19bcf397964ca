package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfrund/storge/internal/auth"
	"github.com/nfrund/storge/internal/config"
)

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a username and PIN",
	Long: `Sign in against the configured login endpoint.

The PIN is read from standard input so it never lands in shell history.

Examples:
  storge login --username alice
  storge login                     # prompts for the username too`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		reader := bufio.NewReader(os.Stdin)
		username := loginUsername
		if username == "" {
			fmt.Print("Username: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read username: %w", err)
			}
			username = strings.TrimSpace(line)
		}
		if username == "" {
			return fmt.Errorf("username is required")
		}

		fmt.Print("PIN: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read pin: %w", err)
		}
		pin := strings.TrimSpace(line)

		client := auth.NewClient(cfg.LoginURL(), nil)
		session, err := client.Login(cmd.Context(), username, pin)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return fmt.Errorf("invalid username or pin")
		}
		if err != nil {
			return err
		}

		if err := saveSession(session); err != nil {
			return err
		}
		fmt.Printf("Signed in as %s\n", session.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := clearSession(); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username to sign in as")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
