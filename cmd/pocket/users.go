package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/artpar/pocket/core/schema"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/core/users"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
	Long: `Manage pocket users.

Users sign in with a username and password. Their groups decide which
resources they may read and change.

Examples:
  pocket users list
  pocket users create --username=root --password=secret --groups=admins
  pocket users token --username=root --password=secret`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUsersList,
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	RunE:  runUsersCreate,
}

var usersTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign in and print a session token",
	RunE:  runUsersToken,
}

var (
	userName     string
	userPassword string
	userGroups   []string
)

func init() {
	rootCmd.AddCommand(usersCmd)

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersTokenCmd)

	for _, cmd := range []*cobra.Command{usersCreateCmd, usersTokenCmd} {
		cmd.Flags().StringVar(&userName, "username", "", "username (required)")
		cmd.Flags().StringVar(&userPassword, "password", "", "password (required)")
		cmd.MarkFlagRequired("username")
		cmd.MarkFlagRequired("password")
	}
	usersCreateCmd.Flags().StringSliceVar(&userGroups, "groups", nil, "comma separated groups (default users)")
}

func runUsersList(cmd *cobra.Command, args []string) (err error) {
	app, err := openApp(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, app.Close()) }()

	recs, err := app.Users.Resource().Find(cmd.Context(), schema.System, storage.Query{},
		storage.FindOptions{Sort: "username"})
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tGROUPS")
	for _, rec := range recs {
		p := users.FromRecord(rec)
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Username, strings.Join(p.Groups, ","))
	}
	return w.Flush()
}

func runUsersCreate(cmd *cobra.Command, args []string) (err error) {
	app, err := openApp(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, app.Close()) }()

	p, err := app.Users.Create(cmd.Context(), userName, userPassword, userGroups, nil)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "User created successfully!")
	fmt.Fprintf(out, "  ID:       %s\n", p.ID)
	fmt.Fprintf(out, "  Username: %s\n", p.Username)
	fmt.Fprintf(out, "  Groups:   %s\n", strings.Join(p.Groups, ","))
	return nil
}

func runUsersToken(cmd *cobra.Command, args []string) (err error) {
	app, err := openApp(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, app.Close()) }()

	p, err := app.Users.Authenticate(cmd.Context(), userName, userPassword)
	if err != nil {
		return err
	}
	token, expiresAt, err := app.Users.IssueToken(p)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
