package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/abduss/benefits/internal/auth"
	"github.com/spf13/cobra"
)

func newUsersCmd() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage administrator accounts",
	}

	var (
		firstName string
		lastName  string
	)
	createCmd := &cobra.Command{
		Use:   "create-admin <email>",
		Short: "Create an administrator account",
		Long: `Create an administrator account.

The password is read from BENEFITS_ADMIN_PASSWORD so it never appears in
shell history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("BENEFITS_ADMIN_PASSWORD")
			if password == "" {
				return errors.New("BENEFITS_ADMIN_PASSWORD is not set")
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			service := auth.NewService(auth.NewRepository(e.pool), e.cfg.Auth)
			result, err := service.Register(cmd.Context(), auth.RegisterInput{
				Email:     args[0],
				Password:  password,
				FirstName: firstName,
				LastName:  lastName,
				AsAdmin:   true,
			})
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (%s)\n", result.User.Email, result.User.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&firstName, "first-name", "Benefits", "given name")
	createCmd.Flags().StringVar(&lastName, "last-name", "Administrator", "family name")
	usersCmd.AddCommand(createCmd)

	var revoke bool
	promoteCmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant or revoke administrator access for an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			email := strings.ToLower(strings.TrimSpace(args[0]))
			repo := auth.NewRepository(e.pool)
			if err := repo.SetAdmin(cmd.Context(), email, !revoke); err != nil {
				return err
			}
			if revoke {
				fmt.Fprintf(cmd.OutOrStdout(), "revoked administrator access for %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "granted administrator access to %s\n", args[0])
			}
			return nil
		},
	}
	promoteCmd.Flags().BoolVar(&revoke, "revoke", false, "remove administrator access instead")
	usersCmd.AddCommand(promoteCmd)

	return usersCmd
}
