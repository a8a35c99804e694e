// Package coachcli implements the coach command line: session management
// and submitting a match through the analysis pipeline.
package coachcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	app "github.com/okian/spinta/internal/app"
	"github.com/okian/spinta/internal/auth"
	"github.com/okian/spinta/internal/config"
	"github.com/okian/spinta/internal/domain/validation"
	"github.com/okian/spinta/pkg/logger"
)

// ErrUsage is returned for unknown commands or bad flags.
var ErrUsage = errors.New("usage error")

// SetupLogging routes the global logger to w in the configured format.
func SetupLogging(cfg *config.Config, w io.Writer) error {
	if err := logger.InitWithWriter(w, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("warn")
	}
	return nil
}

// Run executes one command. out receives user-facing output.
func Run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		ShowHelp(out)
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "-h", "-help", "--help":
		ShowHelp(out)
		return nil
	case "login", "whoami", "logout", "submit":
	default:
		ShowHelp(out)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}

	log := logger.Get()
	components, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	switch cmd {
	case "login":
		return login(ctx, components.Auth, rest, out)
	case "whoami":
		return whoami(ctx, components.Auth, out)
	case "logout":
		if err := components.Auth.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Logged out")
		return nil
	}
	return submit(ctx, cfg, components, rest, out)
}

func login(ctx context.Context, a *auth.Service, args []string, out io.Writer) error {
	fs := newFlagSet("login", out)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", os.Getenv("SPINTA_PASSWORD"), "Account password (or SPINTA_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	res, err := a.Login(ctx, *email, *password)
	if err != nil {
		printError(out, err)
		return err
	}
	fmt.Fprintln(out, res.Notice)
	return nil
}

func whoami(ctx context.Context, a *auth.Service, out io.Writer) error {
	sess, ok, err := a.Session(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "Not logged in")
		return nil
	}
	u := sess.User
	fmt.Fprintf(out, "%s <%s> (%s)\n", u.FullName, u.Email, u.Type)
	return nil
}

// printError writes field messages for validation failures.
func printError(out io.Writer, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for _, f := range verrs.Fields() {
			fmt.Fprintf(out, "  %s: %s\n", f, verrs[f])
		}
		return
	}
	var lerr *auth.LoginError
	if errors.As(err, &lerr) {
		fmt.Fprintln(out, lerr.Message)
	}
}

// ShowHelp prints usage information for the coach tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Spinta Coach
============

Submit matches for analysis and confirm the results.

Usage:
  coach <command> [options]

Commands:
  login    -email EMAIL -password PASSWORD
        Log in and remember the session
  whoami
        Show the logged in coach
  logout
        Forget the session
  submit   -opponent NAME -date YYYY-MM-DD -type home|away -video FILE [options]
        Analyze a match and show the detected events
        -logo FILE         Opponent logo (image, at most 2MB)
        -home-lineup FILE  Home lineup (pdf, doc or docx, at most 5MB)
        -away-lineup FILE  Away lineup
        -home-score N      Final home score
        -away-score N      Final away score
        -output FILE       Write the events JSON to FILE
        -confirm           Save the analysis to the backend
        -timeout DURATION  How long to wait for the analysis (default 10m)

Configuration is read from SPINTA_* environment variables, an optional
YAML file named by SPINTA_CONFIG, and a .env file.

Examples:
  coach login -email coach@club.test -password secret1
  coach submit -opponent Mexico -date 2024-04-20 -type away -video match.mp4 -home-score 2 -away-score 1 -confirm
`)
}
