package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate, with offline fallback against cached credentials",
	Long: `Verify a user's email and password.

When the backend is reachable the credentials are checked remotely and,
with --remember, cached locally (as a bcrypt hash) for later offline
logins. When the backend is unreachable the password is verified against
the cached hash instead; users who never logged in online from this
machine cannot authenticate offline.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.TrimSpace(args[0])
		remember, _ := cmd.Flags().GetBool("remember")

		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.monitor.Probe(ctx)

		user, err := a.auth.AuthenticateLocally(ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Printf("Authenticated as %s %s (%s)\n", user.Prenom, user.Nom, user.Role)

		if remember {
			if err := a.auth.StoreCredentials(ctx, *user, password); err != nil {
				return err
			}
			fmt.Println("Credentials cached for offline login")
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove all cached offline credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.auth.ClearCredentials(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cached credentials removed")
		return nil
	},
}

func init() {
	loginCmd.Flags().Bool("remember", false, "Cache credentials for offline login")
}

// readPassword prompts without echo when stdin is a terminal, otherwise
// reads a line (so the command stays scriptable).
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
