package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"finscope/internal/domain"
	"finscope/internal/hooks"
	"finscope/internal/request"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local users",
	}
	cmd.AddCommand(newUserCreateCmd(a), newUserListCmd(a), newUserVerifyCmd(a))
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var in domain.UserInput
	var remote bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, cls, err := a.dataProvider(remote)
			if err != nil {
				return err
			}
			defer cls()

			h := hooks.CreateUser(p, request.WithPolicy(a.cfg.Policy), request.WithLogger(a.log))
			defer h.Close()
			u, err := h.Fetch(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "username (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (required)")
	cmd.Flags().BoolVar(&remote, "remote", false, "create through ui.remote_url")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserListCmd(a *app) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, cls, err := a.dataProvider(remote)
			if err != nil {
				return err
			}
			defer cls()

			h := hooks.Users(p, request.WithLogger(a.log))
			defer h.Close()
			users, err := h.Fetch(cmd.Context(), hooks.None{})
			if err != nil {
				return err
			}
			if users == nil {
				users = []domain.User{}
			}
			return printJSON(cmd.OutOrStdout(), users)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "list through ui.remote_url")
	return cmd
}

// errPasswordMismatch is returned by user verify for a wrong password.
var errPasswordMismatch = errors.New("password does not match")

func newUserVerifyCmd(a *app) *cobra.Command {
	var (
		id       int64
		password string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a user's password against the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStack()
			if err != nil {
				return err
			}
			defer st.Close()

			ok, err := st.provider.Authenticate(cmd.Context(), id, password)
			if err != nil {
				return fmt.Errorf("verifying user %d: %w", id, err)
			}
			if !ok {
				return errPasswordMismatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "user id (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (required)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
