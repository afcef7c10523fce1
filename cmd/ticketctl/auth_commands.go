package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func loginCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "login EMAIL PASSWORD",
		Short: "Authenticate and persist the session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, apiErr := (*a).session.Login(cmd.Context(), args[0], args[1])
			if apiErr != nil {
				return fmt.Errorf("login failed: %s", apiErr.Message)
			}
			fmt.Printf("logged in as %s (%s)\n", auth.User.Name, auth.User.Email)
			return nil
		},
	}
}

func registerCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "register EMAIL NAME PASSWORD PASSWORD_CONFIRM",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, apiErr := (*a).session.Register(cmd.Context(), args[0], args[1], args[2], args[3])
			if apiErr != nil {
				if len(apiErr.Fields) > 0 {
					return fmt.Errorf("registration failed: %v", apiErr.Fields)
				}
				return fmt.Errorf("registration failed: %s", apiErr.Message)
			}
			fmt.Printf("registered %s (%s)\n", auth.User.Name, auth.User.Email)
			return nil
		},
	}
}

func logoutCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session locally and best-effort server-side",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			(*a).session.Logout(cmd.Context())
			fmt.Println("logged out")
			return nil
		},
	}
}

func whoamiCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			state := (*a).session.Snapshot()
			if !state.Authenticated {
				fmt.Println("not logged in")
				return nil
			}
			fmt.Printf("%s <%s>", state.User.Name, state.User.Email)
			if state.User.Elevated() {
				fmt.Print(" [staff]")
			}
			fmt.Println()
			if expiry, ok := (*a).session.AccessTokenExpiry(); ok {
				fmt.Printf("access token expires %s\n", expiry.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}
