package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/filemgr/internal/config"
	"github.com/tonimelisma/filemgr/internal/credential"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local session state",
		Long: `Display the session state as judged locally: whether a credential is
saved, whether it is still valid, where it is stored, and whether a route
guard is running. Makes no network calls.`,
		RunE: runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Server      string    `json:"server"`
	Backend     string    `json:"backend"`
	State       string    `json:"state"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Cookie      bool      `json:"cookie"`
	Guard       string    `json:"guard,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	app, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer app.Close()

	out := buildStatus(app, cc.Cfg.ServerURL, cc.Cfg.Store.Backend)
	out.Guard = guardStatus(config.DefaultGuardPIDPath())

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	printStatusText(cc, out)

	return nil
}

func buildStatus(app *AppSession, server, backend string) statusOutput {
	out := statusOutput{
		Server:  server,
		Backend: backend,
		State:   app.Session.State().String(),
	}

	cred := app.Session.Credential()
	if !cred.IsZero() {
		out.Fingerprint = cred.Fingerprint()
		out.ExpiresAt = credential.Expiry(cred)

		if claims, err := credential.Decode(cred); err == nil {
			out.Subject = claims.Subject
		}
	}

	if c, err := app.Cookies.Load(); err == nil && c != nil {
		out.Cookie = true
	}

	return out
}

// guardStatus describes the route guard holding the lock at path, or ""
// if none is running.
func guardStatus(path string) string {
	rec, err := findGuard(path)
	if err != nil {
		return ""
	}

	if rec.URL() == "" {
		return fmt.Sprintf("starting (PID %d)", rec.PID)
	}

	return fmt.Sprintf("%s (PID %d)", rec.URL(), rec.PID)
}

func printStatusText(cc *CLIContext, out statusOutput) {
	fmt.Fprintf(cc.Stdout, "Server:  %s\n", out.Server)
	fmt.Fprintf(cc.Stdout, "Store:   %s\n", out.Backend)
	fmt.Fprintf(cc.Stdout, "State:   %s\n", out.State)

	if out.Guard != "" {
		fmt.Fprintf(cc.Stdout, "Guard:   %s\n", out.Guard)
	}

	if out.Fingerprint == "" {
		return
	}

	if out.Subject != "" {
		fmt.Fprintf(cc.Stdout, "Subject: %s\n", out.Subject)
	}

	fmt.Fprintf(cc.Stdout, "Token:   %s\n", out.Fingerprint)
	fmt.Fprintf(cc.Stdout, "Expires: %s\n", formatRemaining(out.ExpiresAt, time.Now()))

	cookie := "absent"
	if out.Cookie {
		cookie = "present"
	}

	fmt.Fprintf(cc.Stdout, "Cookie:  %s\n", cookie)
}
