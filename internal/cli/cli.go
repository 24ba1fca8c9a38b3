// Package cli assembles the arckeeper command tree. Commands resolve
// archives by name or id and route password entry through the pending
// operation prompts.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/and161185/arc-keeper/internal/archive"
	"github.com/and161185/arc-keeper/internal/config"
	"github.com/and161185/arc-keeper/internal/errs"
	"github.com/and161185/arc-keeper/internal/execx"
	"github.com/and161185/arc-keeper/internal/keystore"
	"github.com/and161185/arc-keeper/internal/model"
)

// maxPromptAttempts bounds interactive password retries.
const maxPromptAttempts = 3

// App carries the wired collaborators into the command tree.
type App struct {
	Cfg     config.Config
	CfgPath string
	Manager *archive.Manager
	Keys    *keystore.KeyStore
	Runner  execx.Runner
	Log     *zap.Logger

	// Stdin/Stdout default to the process streams; tests replace them.
	Stdin  io.Reader
	Stdout io.Writer
}

func (a *App) in() io.Reader {
	if a.Stdin != nil {
		return a.Stdin
	}
	return os.Stdin
}

func (a *App) out() io.Writer {
	if a.Stdout != nil {
		return a.Stdout
	}
	return os.Stdout
}

// New builds the root command.
func New(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "arckeeper",
		Short:         "Manage encrypted sparse-bundle archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newListCmd(app),
		newCreateCmd(app),
		newOpenCmd(app),
		newCloseCmd(app),
		newCompactCmd(app),
		newRemoveCmd(app),
		newBackupCmd(app),
		newRecoverCmd(app),
		newKeyCmd(app),
		newFavCmd(app),
		newWatchCmd(app),
		newUnwatchCmd(app),
		newS3Cmd(app),
		newAgentCmd(app),
	)
	return root
}

// resolve looks an archive up by id first, then by exact name.
func (app *App) resolve(ctx context.Context, ref string) (*model.Archive, error) {
	if id, err := uuid.FromString(ref); err == nil {
		return app.Manager.Get(ctx, id)
	}
	return app.Manager.FindByName(ctx, ref)
}

// readPassword reads a secret without echo when stdin is a terminal, and
// falls back to a plain line read otherwise (tests, pipes).
func (app *App) readPassword(prompt string) (string, error) {
	fmt.Fprint(app.out(), prompt)
	if f, ok := app.in().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		defer fmt.Fprintln(app.out())
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(app.in())
}

// readLine consumes exactly one line, byte by byte, so consecutive prompts
// over the same reader never swallow each other's input.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("read password: %w", err)
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}

// validatePassword reports whether the password carries an upper-case
// letter, a lower-case letter and a digit. Advisory only; weak passwords
// are warned about, never rejected.
func validatePassword(p string) bool {
	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// submitWithPrompt drives a pending operation through up to
// maxPromptAttempts password entries.
func (app *App) submitWithPrompt(ctx context.Context, op *archive.PendingOperation, prompt string) error {
	var err error
	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		var password string
		password, err = app.readPassword(prompt)
		if err != nil {
			op.Cancel()
			return err
		}
		if password == "" {
			err = errs.ErrNoPassword
			fmt.Fprintf(app.out(), "failed: %v\n", err)
			continue
		}
		err = op.Submit(ctx, password)
		if err == nil {
			return nil
		}
		fmt.Fprintf(app.out(), "failed: %v\n", err)
	}
	op.Cancel()
	return err
}
