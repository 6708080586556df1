package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"guardattend/internal/auth"
	"guardattend/internal/bootstrap"
	"guardattend/internal/photos"
	"guardattend/internal/users"
)

type registerOptions struct {
	UserID    string
	Name      string
	Phone     string
	Email     string
	PhotoPath string
}

func newRegisterCommand(root *RootOptions, open Opener) *cobra.Command {
	opts := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a guard",
		Long: `Register a guard in the users table. The password is read from the
terminal without echo, or from the first line of stdin when it is piped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.UserID) == "" {
				return NewExitError(ExitCommandError, "--user-id is required")
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return WrapExitError(ExitCommandError, "read password", err)
			}
			if password == "" {
				return NewExitError(ExitCommandError, "password must not be empty")
			}
			return withApp(cmd, root, open, func(app *bootstrap.App, out *Output) error {
				return runRegister(cmd, app, out, opts, password)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.UserID, "user-id", "u", "", "user id (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.PhotoPath, "photo", "", "profile photo file to store")
	return cmd
}

func runRegister(cmd *cobra.Command, app *bootstrap.App, out *Output, opts *registerOptions, password string) error {
	ctx := cmd.Context()
	existing, err := app.Users.Find(ctx, opts.UserID)
	if err != nil {
		return WrapExitError(ExitFailure, "lookup user", err)
	}
	if existing != nil {
		return WrapExitError(ExitFailure, "register", users.ErrDuplicateUser)
	}

	var stored string
	if opts.PhotoPath != "" {
		f, err := os.Open(opts.PhotoPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "open photo", err)
		}
		defer f.Close()
		name := photos.ObjectName(opts.UserID, opts.PhotoPath, time.Now())
		if stored, err = app.Photos.Save(ctx, name, f); err != nil {
			return WrapExitError(ExitFailure, "store photo", err)
		}
	}

	u := users.User{
		UserID:       opts.UserID,
		Name:         opts.Name,
		Phone:        opts.Phone,
		Email:        opts.Email,
		PasswordHash: auth.Digest(password),
		PhotoPath:    stored,
	}
	if err := app.Users.Register(ctx, u); err != nil {
		return WrapExitError(ExitFailure, "register", err)
	}
	return out.Success(map[string]string{"user_id": strings.TrimSpace(u.UserID), "photo_path": stored},
		"registered %s", strings.TrimSpace(u.UserID))
}

// readPassword prompts on a terminal, otherwise reads one line. Surrounding
// whitespace is not part of the password.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(pw)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newFindCommand(root *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "find <user_id>",
		Short: "Look up a guard by user id (case-insensitive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, open, func(app *bootstrap.App, out *Output) error {
				u, err := app.Users.Find(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "find", err)
				}
				if u == nil {
					return NewExitError(ExitFailure, fmt.Sprintf("user %q not found", args[0]))
				}
				if out.JSON() {
					return out.Success(u, "")
				}
				fmt.Fprintf(out.Writer, "user_id:    %s\nname:       %s\nphone:      %s\nemail:      %s\nphoto_path: %s\n",
					u.UserID, u.Name, u.Phone, u.Email, u.PhotoPath)
				return nil
			})
		},
	}
}
