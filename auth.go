package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tonimelisma/filemgr/internal/credential"
	"github.com/tonimelisma/filemgr/internal/session"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in with email and password",
		Long: `Sign in to the server. The password is read from the terminal with echo
disabled, or from a file with --password-file ("-" reads one line from stdin).`,
		Args: cobra.ExactArgs(1),
		RunE: runLogin,
	}

	cmd.Flags().String("password-file", "", "read the password from this file (- for stdin)")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE:  runRegister,
	}

	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("password-file", "", "read the password from this file (- for stdin)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved login (no network call)",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user",
		RunE:  runWhoami,
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the current credential for a fresh one",
		RunE:  runRefresh,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	email := args[0]

	passwordFile, _ := cmd.Flags().GetString("password-file")

	password, err := readPassword(passwordFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	app, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer app.Close()

	cc.Logger.Info("login started", "email", email)

	identity, err := app.Session.LoginWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cc.Statusf("Signed in as %s.\n", displayName(ctx, app, identity, email))

	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	email := args[0]

	name, _ := cmd.Flags().GetString("name")
	passwordFile, _ := cmd.Flags().GetString("password-file")

	password, err := readPassword(passwordFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	app, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer app.Close()

	identity, err := app.Session.Register(ctx, name, email, password)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	cc.Statusf("Account created. Signed in as %s.\n", displayName(ctx, app, identity, email))

	return nil
}

// displayName names the signed-in user. Servers that omit the user from the
// token response are asked once; failing that the email typed is used.
func displayName(ctx context.Context, app *AppSession, identity *credential.Identity, email string) string {
	if identity == nil {
		identity, _ = app.Session.CurrentIdentity(ctx)
	}

	if identity == nil {
		return email
	}

	return identity.DisplayName()
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	app, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Session.Logout(cmd.Context()); err != nil {
		// The in-memory session is gone; only a surface lingered.
		return fmt.Errorf("logged out, but saved login not fully removed: %w", err)
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	app, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.requireLogin(); err != nil {
		return err
	}

	identity, err := app.Session.CurrentIdentity(ctx)
	if err != nil {
		return fmt.Errorf("fetching user: %w", err)
	}

	// The fetch may have ended the session.
	if identity == nil {
		return fmt.Errorf("not logged in: run 'filemgr login' first")
	}

	exp := credential.Expiry(app.Session.Credential())

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, whoamiOutput{
			ID:        identity.ID,
			Email:     identity.Email,
			Name:      identity.Name,
			ExpiresAt: exp,
		})
	}

	fmt.Fprintf(cc.Stdout, "User:    %s (%s)\n", identity.DisplayName(), identity.Email)
	fmt.Fprintf(cc.Stdout, "ID:      %s\n", identity.ID)
	fmt.Fprintf(cc.Stdout, "Expires: %s\n", formatRemaining(exp, time.Now()))

	return nil
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	app, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer app.Close()

	fresh, err := app.Session.Refresh(ctx)
	if errors.Is(err, session.ErrNotLoggedIn) {
		return fmt.Errorf("not logged in: run 'filemgr login' first")
	}

	if err != nil {
		return fmt.Errorf("refreshing credential: %w", err)
	}

	cc.Logger.Debug("credential refreshed", "fingerprint", fresh.Fingerprint())
	cc.Statusf("Credential refreshed, valid for %s.\n", formatRemaining(credential.Expiry(fresh), time.Now()))

	return nil
}

// readPassword reads a password from passwordFile, from stdin when it is
// "-", or from the terminal with echo disabled when it is empty.
func readPassword(passwordFile string, stdin io.Reader) (string, error) {
	switch passwordFile {
	case "":
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("no terminal available for password prompt (use --password-file)")
		}

		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return nonEmptyPassword(string(b), "terminal")
	case "-":
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}

		return nonEmptyPassword(line, "stdin")
	default:
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("reading password file: %w", err)
		}

		return nonEmptyPassword(string(data), passwordFile)
	}
}

// nonEmptyPassword strips the trailing newline files and pipes usually carry.
func nonEmptyPassword(raw, source string) (string, error) {
	pw := strings.TrimRight(raw, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("empty password from %s", source)
	}

	return pw, nil
}
