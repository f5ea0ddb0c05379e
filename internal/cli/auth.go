package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/session"
	"pharmacy/admin/internal/validation"
)

func newLoginCmd(app *App) *cobra.Command {
	var req domain.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.checkForm(cmd, req); err != nil {
				return err
			}
			resp, err := app.Client.Login(cmd.Context(), req)
			if err != nil {
				return err
			}
			app.Notifier.Success("Login successful")
			return app.emit(cmd, resp.User, func() string {
				return fmt.Sprintf("Signed in as %s (%s)", resp.User.Username, resp.User.Role)
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password")
	return cmd
}

func newRegisterCmd(app *App) *cobra.Command {
	var req domain.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.checkForm(cmd, req); err != nil {
				return err
			}
			user, err := app.Client.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			app.Notifier.Success("Registration successful")
			return app.emit(cmd, user, func() string {
				return fmt.Sprintf("Registered %s <%s> as %s", user.Username, user.Email, user.Role)
			})
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "User name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password")
	cmd.Flags().StringVar(&req.Role, "role", domain.RoleStaff, "Role: Admin or Staff")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.Client.Logout(cmd.Context()); err != nil {
				return errors.Wrap(err, "clear session")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return err
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.Sessions.Get(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "read session")
			}
			if _, ok := session.NewIdentity(app.Sessions).CurrentUserID(); !ok || s == nil {
				return errors.New("not signed in; run pharmactl login")
			}
			return app.emit(cmd, s.User, func() string {
				return fmt.Sprintf("%s <%s> %s\n%s", s.User.Username, s.User.Email, s.User.Role, dimStyle.Render("id "+s.User.ID))
			})
		},
	}
}

// checkForm runs the shared request validation before anything is sent.
func (app *App) checkForm(cmd *cobra.Command, form any) error {
	err := app.validate.Struct(form)
	if err == nil {
		return nil
	}
	var fields validation.FieldErrors
	if errors.As(err, &fields) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), fieldErrorLines(fields))
		return errors.New("please fix the fields above")
	}
	return err
}
