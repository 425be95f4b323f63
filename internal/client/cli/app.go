// Package cli implements the classly command line client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/NordCoder/Classly/internal/client/api"
	"github.com/NordCoder/Classly/internal/client/session"
	config "github.com/NordCoder/Classly/internal/config/cli"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

var ErrUsage = errors.New("usage: classly <register|login|me|logout|forgot|reset> [args]")

type App struct {
	api   *api.Client
	agent *session.Agent
	in    *bufio.Reader
	out   io.Writer
	tty   bool
}

func NewApp(cfg *config.Config, log *zap.Logger) *App {
	base := api.New(cfg.BaseURL, api.NewHTTPClient(cfg.HTTP))
	agent := session.NewAgent(session.Options{
		Refresher: session.RefresherFunc(base.Refresh),
		Store:     session.NewFileStore(cfg.CredentialsFile),
		OnLogout: func() {
			fmt.Fprintln(os.Stderr, "session expired, log in again")
		},
		Logger: log,
	})
	return newApp(base.WithAgent(agent), agent, os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
}

func newApp(c *api.Client, agent *session.Agent, in io.Reader, out io.Writer, tty bool) *App {
	return &App{api: c, agent: agent, in: bufio.NewReader(in), out: out, tty: tty}
}

func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	if err := a.agent.Bootstrap(ctx); err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register":
		return a.register(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "me":
		return a.me(ctx)
	case "logout":
		return a.logout(ctx)
	case "forgot":
		return a.forgot(ctx, rest)
	case "reset":
		return a.reset(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, ErrUsage)
	}
}

func (a *App) register(ctx context.Context, args []string) error {
	email, err := a.argOrPrompt(args, 0, "Email")
	if err != nil {
		return err
	}
	name, err := a.argOrPrompt(args, 1, "Display name")
	if err != nil {
		return err
	}
	password, err := a.password("Password: ")
	if err != nil {
		return err
	}
	s, err := a.api.Register(ctx, email, password, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered %s (id %d)\n", s.User.Email, s.User.ID)
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	email, err := a.argOrPrompt(args, 0, "Email")
	if err != nil {
		return err
	}
	password, err := a.password("Password: ")
	if err != nil {
		return err
	}
	s, err := a.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", s.User.Email)
	return nil
}

func (a *App) me(ctx context.Context) error {
	if a.agent.Credentials().Empty() {
		return api.ErrNotLoggedIn
	}
	u, err := a.api.Me(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return api.ErrNotLoggedIn
		}
		return err
	}
	fmt.Fprintf(a.out, "id:       %d\nemail:    %s\nname:     %s\nrole:     %s\npremium:  %t\n",
		u.ID, u.Email, u.DisplayName, u.Role, u.IsPremium)
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if err := a.api.Logout(ctx); err != nil && !errors.Is(err, api.ErrUnauthorized) {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) forgot(ctx context.Context, args []string) error {
	email, err := a.argOrPrompt(args, 0, "Email")
	if err != nil {
		return err
	}
	token, err := a.api.RequestPasswordReset(ctx, email)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "If the account exists, a reset link is on its way.")
	if token != "" {
		fmt.Fprintf(a.out, "reset token: %s\n", token)
	}
	return nil
}

func (a *App) reset(ctx context.Context, args []string) error {
	token, err := a.argOrPrompt(args, 0, "Reset token")
	if err != nil {
		return err
	}
	password, err := a.password("New password: ")
	if err != nil {
		return err
	}
	if err := a.api.CompletePasswordReset(ctx, token, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password updated. Log in again on every device.")
	return nil
}

func (a *App) argOrPrompt(args []string, i int, prompt string) (string, error) {
	if i < len(args) && args[i] != "" {
		return args[i], nil
	}
	fmt.Fprint(a.out, prompt+": ")
	return a.line()
}

// password does not echo on a terminal; piped input is read as a line.
func (a *App) password(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	if !a.tty {
		return a.line()
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (a *App) line() (string, error) {
	s, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}
