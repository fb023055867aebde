package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kr3yzi/medcertify/internal/auth"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the wallet",
	Long: `Run the wallet challenge-response login: request a one-time nonce,
sign the challenge with the configured keystore wallet and exchange the
proof for a session token. The session persists across invocations until
logout.`,
	RunE: runLogin,
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	RunE:  runLogout,
}

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	Long:  `Restore the stored session, refresh role memberships and print the result.`,
	RunE:  runWhoami,
}

func init() {
	clientCmd.AddCommand(loginCmd)
	clientCmd.AddCommand(logoutCmd)
	clientCmd.AddCommand(whoamiCmd)
}

func newSessionManager() (*auth.Manager, error) {
	api, err := newClient()
	if err != nil {
		return nil, err
	}
	w, err := newWallet()
	if err != nil {
		return nil, err
	}
	store, err := newSessionStore()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(api, w, auth.WithSessionStore(store)), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	m, err := newSessionManager()
	if err != nil {
		return err
	}

	if err := m.Login(newContext()); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	printSession(cmd, m)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}
	store, err := newSessionStore()
	if err != nil {
		return err
	}

	m := auth.NewManager(api, nil, auth.WithSessionStore(store))
	m.Logout()
	cmd.Println("Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	m, err := newSessionManager()
	if err != nil {
		return err
	}

	if err := m.Restore(newContext()); err != nil {
		if errors.Is(err, auth.ErrRegistrationCheckFailed) {
			cmd.Println("Warning: patient registration could not be verified.")
		} else {
			return fmt.Errorf("restoring session: %w", err)
		}
	}

	session := m.Session()
	if !session.Authenticated() {
		cmd.Println("Not logged in.")
		return nil
	}

	printSession(cmd, m)
	return nil
}

func printSession(cmd *cobra.Command, m *auth.Manager) {
	session := m.Session()

	cmd.Printf("Address: %s\n", session.Address)
	if session.PrimaryRole != "" {
		cmd.Printf("Role: %s\n", session.PrimaryRole)
	} else {
		cmd.Println("Role: none")
	}
	var held []string
	for role, ok := range session.Roles {
		if ok {
			held = append(held, string(role))
		}
	}
	if len(held) > 0 {
		cmd.Printf("Memberships: %v\n", held)
	}
	if session.IsRegisteredPatient {
		cmd.Println("Registered patient: yes")
	}
}
