package main

import (
	"fmt"

	"github.com/spf13/cobra"

	wayfare "github.com/wayfarelabs/wayfare/clients/go/wayfare"
)

func init() {
	loginCmd.Flags().StringVar(&loginName, "name", "", "display name")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email address")
	loginCmd.Flags().StringVar(&loginPhoto, "photo", "", "avatar URL")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

var (
	loginName  string
	loginEmail string
	loginPhoto string
)

var loginCmd = &cobra.Command{
	Use:   "login <user-id> <id-token>",
	Short: "Sign in with a provider identity",
	Long:  "Exchange a completed provider sign-in (user id plus id token) for a Wayfare session. The session is sealed into the local keystore.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		resp, err := client.SignIn(args[1], args[0], loginName, loginEmail, loginPhoto)
		if err != nil {
			return err
		}

		fmt.Printf("Signed in as %s (%s)\n", resp.User.Name, resp.User.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the local session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.SignOut(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the locally cached identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		profile, err := client.Profile()
		if err != nil {
			return err
		}
		if profile[wayfare.KeyUserID] == "" {
			fmt.Println("Not signed in.")
			return nil
		}

		fmt.Printf("User:  %s (%s)\n", profile[wayfare.KeyUserName], profile[wayfare.KeyUserID])
		if email := profile[wayfare.KeyUserEmail]; email != "" {
			fmt.Printf("Email: %s\n", email)
		}
		return nil
	},
}
